package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mailgram/mailgram/internal/domain/channel"
	"github.com/mailgram/mailgram/internal/domain/mail"
)

const (
	defaultLimit = 100
	defaultWidth = 8
)

// Config tunes a Service. Zero values fall back to defaults.
type Config struct {
	// Limit bounds how many pending records one run picks up.
	Limit int
	// Width bounds the per-record fan-out.
	Width int
}

// Service sends one notification per pending record and marks each
// successfully sent record as delivered. A failed send leaves the
// record pending; the next run retries it. An empty pending set is a
// silent no-op; any "no new mail" reply is the command handler's
// decision.
type Service struct {
	store mail.Store
	ch    channel.Channel
	to    string
	limit int
	width int
}

type Result struct {
	Pending   int
	Delivered int
	Failed    int
}

func NewService(store mail.Store, ch channel.Channel, recipientID string, cfg Config) *Service {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	return &Service{
		store: store,
		ch:    ch,
		to:    recipientID,
		limit: limit,
		width: width,
	}
}

func (s *Service) Run(ctx context.Context) (Result, error) {
	pending, err := s.store.PendingForDelivery(ctx, s.limit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to query pending mails: %w", err)
	}

	if len(pending) == 0 {
		slog.Info("no pending mail to deliver")
		return Result{}, nil
	}

	var delivered, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.width)
	for _, record := range pending {
		g.Go(func() error {
			if err := s.deliverOne(ctx, record); err != nil {
				slog.Error("failed to deliver notification",
					"message_id", record.MessageID,
					"error", err,
				)
				failed.Add(1)
			} else {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := Result{
		Pending:   len(pending),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}

	slog.Info("delivery completed",
		"pending", result.Pending,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)

	return result, nil
}

func (s *Service) deliverOne(ctx context.Context, record mail.Record) error {
	if err := s.ch.PushText(ctx, s.to, formatNotification(record)); err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}

	if err := s.store.MarkDelivered(ctx, record.MessageID); err != nil {
		// The notification went out; surface the store failure so it is
		// visible, the record will be retried on the next run.
		return fmt.Errorf("sent but failed to mark as delivered: %w", err)
	}

	return nil
}

// formatNotification quotes the surrogate handle, never the message
// content.
func formatNotification(record mail.Record) string {
	return fmt.Sprintf("📧 New mail\nFrom: %s\nSubject: %s\nRef: %s",
		record.Sender,
		record.Subject,
		record.Handle,
	)
}
