package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mailgram/mailgram/internal/domain/mail"
	"github.com/mailgram/mailgram/internal/domain/source"
)

const (
	defaultLabel = "CATEGORY_PERSONAL"
	defaultWidth = 8
	handleLength = 10
)

// Config tunes a Service. Zero values fall back to defaults.
type Config struct {
	// Label restricts fetching to one mailbox category.
	Label string
	// Width bounds the per-candidate fan-out.
	Width int
}

// Service ingests new mailbox messages into the mail store. A run reads
// the sync cursor, fetches candidates past it, and stores one pending
// record per previously unseen message. Failures are contained per
// candidate; only a failed candidate listing or an unreachable store
// aborts the run.
type Service struct {
	src   source.Source
	store mail.Store
	label string
	width int
}

// Result reports per-run counters. Skipped covers both dedup hits and
// insert races lost to a concurrent run.
type Result struct {
	Fetched  int
	Ingested int
	Skipped  int
	Failed   int
}

func NewService(src source.Source, store mail.Store, cfg Config) *Service {
	label := cfg.Label
	if label == "" {
		label = defaultLabel
	}
	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	return &Service{
		src:   src,
		store: store,
		label: label,
		width: width,
	}
}

func (s *Service) Run(ctx context.Context) (Result, error) {
	cursor, ok, err := s.store.LatestCursor(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read ingestion cursor: %w", err)
	}

	q := source.Query{Label: s.label, UnreadOnly: true}
	if ok {
		q.MinArrival = cursor
	}

	candidates, err := s.src.ListCandidates(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list candidates: %w", err)
	}

	if len(candidates) == 0 {
		slog.Info("no new mail candidates")
		return Result{}, nil
	}

	var ingested, skipped, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.width)
	for _, candidate := range candidates {
		g.Go(func() error {
			switch err := s.ingestOne(ctx, candidate.ID); {
			case err == nil:
				ingested.Add(1)
			case errors.Is(err, errAlreadyIngested):
				slog.Debug("skipping known message", "message_id", candidate.ID)
				skipped.Add(1)
			default:
				slog.Error("failed to ingest candidate",
					"message_id", candidate.ID,
					"error", err,
				)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := Result{
		Fetched:  len(candidates),
		Ingested: int(ingested.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}

	slog.Info("ingestion completed",
		"fetched", result.Fetched,
		"ingested", result.Ingested,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, nil
}

// errAlreadyIngested marks a candidate that was deduped, either by the
// existence check or by losing an insert race.
var errAlreadyIngested = errors.New("already ingested")

func (s *Service) ingestOne(ctx context.Context, messageID string) error {
	existing, err := s.store.FindByMessageID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed dedup check: %w", err)
	}
	if existing != nil {
		return errAlreadyIngested
	}

	msg, err := s.src.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	record := &mail.Record{
		MessageID: msg.ID,
		ArrivalAt: msg.ArrivalAt,
		Subject:   msg.Subject,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Handle:    newHandle(),
	}

	if err := s.store.Insert(ctx, record); err != nil {
		// A concurrent run may have raced past the existence check and
		// inserted first; that run owns the record.
		if errors.Is(err, mail.ErrDuplicateMessage) {
			return errAlreadyIngested
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// newHandle returns a short surrogate identifier for notification text.
// Uniqueness is probabilistic; MessageID remains the correctness key.
func newHandle() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:handleLength]
}
