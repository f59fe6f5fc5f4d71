package di

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/mailgram/mailgram/internal/config"
	channeldomain "github.com/mailgram/mailgram/internal/domain/channel"
	maildomain "github.com/mailgram/mailgram/internal/domain/mail"
	sourcedomain "github.com/mailgram/mailgram/internal/domain/source"
	"github.com/mailgram/mailgram/internal/infrastructure/repository/gmailsource"
	"github.com/mailgram/mailgram/internal/infrastructure/repository/linechannel"
	"github.com/mailgram/mailgram/internal/infrastructure/repository/mailstore"
	"github.com/mailgram/mailgram/internal/scheduler"
	"github.com/mailgram/mailgram/internal/service/delivery"
	"github.com/mailgram/mailgram/internal/service/ingestion"
)

type Container struct {
	DB        *sql.DB
	Store     maildomain.Store
	Source    sourcedomain.Source
	Channel   channeldomain.Channel
	Ingestion *ingestion.Service
	Delivery  *delivery.Service
	Scheduler *scheduler.Scheduler
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		slog.Warn("database ping failed", "error", err)
	} else {
		slog.Info("database connected")
	}

	store, err := mailstore.New(db, cfg.DBDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mail store: %w", err)
	}

	src, err := gmailsource.New(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath, cfg.FetchPageSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Gmail source: %w", err)
	}

	ch, err := linechannel.New(cfg.LineChannelToken)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize LINE channel: %w", err)
	}

	ingestionService := ingestion.NewService(src, store, ingestion.Config{
		Label: cfg.GmailLabel,
		Width: cfg.FanoutWidth,
	})
	deliveryService := delivery.NewService(store, ch, cfg.OwnerUserID, delivery.Config{
		Limit: cfg.DeliveryLimit,
		Width: cfg.FanoutWidth,
	})

	sched, err := scheduler.New(cfg.FetchCron, ingestionService, deliveryService)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	return &Container{
		DB:        db,
		Store:     store,
		Source:    src,
		Channel:   ch,
		Ingestion: ingestionService,
		Delivery:  deliveryService,
		Scheduler: sched,
	}, nil
}

func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
