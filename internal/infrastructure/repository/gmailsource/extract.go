package gmailsource

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/api/gmail/v1"

	"github.com/mailgram/mailgram/internal/domain/source"
)

// Placeholder text for fields that cannot be extracted. A malformed
// message still produces a complete record; the user is told something
// arrived even when the body cannot be decoded.
const (
	placeholderSubject = "(no subject)"
	placeholderSender  = "(unknown sender)"
	placeholderContent = "(content unavailable)"
)

const maxContentLength = 1000

func extractMessage(msg *gmail.Message) *source.Message {
	arrivalAt := msg.InternalDate
	if arrivalAt == 0 {
		arrivalAt = time.Now().UnixMilli()
	}

	return &source.Message{
		ID:        msg.Id,
		ArrivalAt: arrivalAt,
		Subject:   headerValue(msg.Payload, "Subject", placeholderSubject),
		Sender:    headerValue(msg.Payload, "From", placeholderSender),
		Content:   extractContent(msg),
	}
}

func headerValue(payload *gmail.MessagePart, name, fallback string) string {
	if payload == nil {
		return fallback
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) && h.Value != "" {
			return h.Value
		}
	}
	return fallback
}

// extractContent prefers a decoded text/plain part, then any part with
// body data, then the top-level body, then the snippet.
func extractContent(msg *gmail.Message) string {
	if msg.Payload != nil {
		for _, part := range msg.Payload.Parts {
			if part.MimeType == "text/plain" {
				if text, ok := decodeBody(part.Body); ok {
					return clip(text)
				}
			}
		}
		for _, part := range msg.Payload.Parts {
			if text, ok := decodeBody(part.Body); ok {
				return clip(text)
			}
		}
		if text, ok := decodeBody(msg.Payload.Body); ok {
			return clip(text)
		}
	}
	if msg.Snippet != "" {
		return clip(msg.Snippet)
	}
	return placeholderContent
}

func decodeBody(body *gmail.MessagePartBody) (string, bool) {
	if body == nil || body.Data == "" {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(body.Data)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(body.Data)
		if err != nil {
			return "", false
		}
	}
	text := strings.TrimSpace(string(decoded))
	if text == "" {
		return "", false
	}
	return text, true
}

func clip(text string) string {
	if len(text) <= maxContentLength {
		return text
	}
	// Back off to a rune boundary so the cut never produces invalid
	// UTF-8.
	cut := maxContentLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
