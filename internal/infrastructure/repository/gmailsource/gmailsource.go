package gmailsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailgram/mailgram/internal/domain/source"
)

const gmailUser = "me"

// Source implements source.Source against the Gmail API for a single,
// already-authorized mailbox.
type Source struct {
	svc      *gmail.Service
	pageSize int64
}

var _ source.Source = (*Source)(nil)

// New builds a Gmail source from an OAuth client credentials file and a
// stored authorized-user token file. Token refresh is handled by the
// oauth2 client; acquiring the token in the first place is not this
// service's concern.
func New(ctx context.Context, credentialsPath, tokenPath string, pageSize int64) (*Source, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tb, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(tb, token); err != nil {
		return nil, fmt.Errorf("unable to parse token: %w", err)
	}

	client := config.Client(ctx, token)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	return &Source{svc: svc, pageSize: pageSize}, nil
}

func (s *Source) ListCandidates(ctx context.Context, q source.Query) ([]source.Candidate, error) {
	var terms []string
	if q.UnreadOnly {
		terms = append(terms, "is:unread")
	}
	if q.MinArrival > 0 {
		// Gmail's after: operator is second-granular while arrival
		// timestamps are milliseconds. The window overlaps by up to a
		// second; dedup absorbs the overlap.
		terms = append(terms, fmt.Sprintf("after:%d", q.MinArrival/1000))
	}

	var candidates []source.Candidate
	pageToken := ""
	for {
		call := s.svc.Users.Messages.List(gmailUser).
			MaxResults(s.pageSize).
			IncludeSpamTrash(false).
			Context(ctx)
		if q.Label != "" {
			call = call.LabelIds(q.Label)
		}
		if len(terms) > 0 {
			call = call.Q(strings.Join(terms, " "))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %w", err)
		}

		for _, m := range resp.Messages {
			candidates = append(candidates, source.Candidate{ID: m.Id})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return candidates, nil
}

func (s *Source) GetMessage(ctx context.Context, messageID string) (*source.Message, error) {
	msg, err := s.svc.Users.Messages.Get(gmailUser, messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", messageID, err)
	}

	return extractMessage(msg), nil
}
