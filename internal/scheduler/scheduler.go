package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mailgram/mailgram/internal/service/delivery"
	"github.com/mailgram/mailgram/internal/service/ingestion"
)

type Ingestor interface {
	Run(ctx context.Context) (ingestion.Result, error)
}

type Deliverer interface {
	Run(ctx context.Context) (delivery.Result, error)
}

// Scheduler runs ingestion followed by delivery on a cron spec. The
// scheduled path stays silent when nothing is pending; only the webhook
// command path sends an empty notice.
type Scheduler struct {
	cron *cron.Cron
}

func New(spec string, ingestor Ingestor, deliverer Deliverer) (*Scheduler, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()

		slog.Info("scheduled mail check started")
		if _, err := ingestor.Run(ctx); err != nil {
			slog.Error("scheduled ingestion failed", "error", err)
			// Delivery can still drain records stored by earlier runs.
		}
		if _, err := deliverer.Run(ctx); err != nil {
			slog.Error("scheduled delivery failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule mail check: %w", err)
	}

	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
