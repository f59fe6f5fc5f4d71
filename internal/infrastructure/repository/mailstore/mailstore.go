package mailstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/mailgram/mailgram/internal/domain/mail"
)

// Store implements mail.Store on top of a single mails table. It runs
// against MySQL in production and against in-memory SQLite in tests;
// all queries stick to the dialect subset both support.
type Store struct {
	db *sqlx.DB
}

var _ mail.Store = (*Store)(nil)

// New wraps an open connection and applies any pending schema
// migrations.
func New(dbConn *sql.DB, driverName string) (*Store, error) {
	s := &Store{db: sqlx.NewDb(dbConn, driverName)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate mails schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := s.db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply migration v%d: %w", m.version, err)
			}
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
	}

	return nil
}

type dbRecord struct {
	MessageID string `db:"message_id"`
	ArrivalAt int64  `db:"arrival_at"`
	Subject   string `db:"subject"`
	Sender    string `db:"sender"`
	Content   string `db:"content"`
	Handle    string `db:"handle"`
	Delivery  string `db:"delivery"`
	Visible   bool   `db:"visible"`
	CreatedAt int64  `db:"created_at"`
}

const selectColumns = `message_id, arrival_at, subject, sender, content, handle, delivery, visible, created_at`

func (s *Store) FindByMessageID(ctx context.Context, messageID string) (*mail.Record, error) {
	var row dbRecord
	err := s.db.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM mails WHERE message_id = ?`, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mail by message id: %w", err)
	}
	return rowToDomain(row), nil
}

func (s *Store) Insert(ctx context.Context, record *mail.Record) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// Delivery state and visibility are owned by the store contract:
	// every new record starts pending and visible.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mails (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.MessageID,
		record.ArrivalAt,
		record.Subject,
		record.Sender,
		record.Content,
		record.Handle,
		string(mail.DeliveryPending),
		true,
		createdAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mail.ErrDuplicateMessage
		}
		return fmt.Errorf("failed to insert mail: %w", err)
	}
	return nil
}

func (s *Store) LatestCursor(ctx context.Context) (int64, bool, error) {
	var cursor sql.NullInt64
	if err := s.db.GetContext(ctx, &cursor, `SELECT MAX(arrival_at) FROM mails`); err != nil {
		return 0, false, fmt.Errorf("failed to read latest cursor: %w", err)
	}
	if !cursor.Valid {
		return 0, false, nil
	}
	return cursor.Int64, true, nil
}

func (s *Store) PendingForDelivery(ctx context.Context, limit int) ([]mail.Record, error) {
	var rows []dbRecord
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM mails
		 WHERE delivery = ? AND visible = ?
		 ORDER BY arrival_at ASC
		 LIMIT ?`,
		string(mail.DeliveryPending), true, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending mails: %w", err)
	}

	records := make([]mail.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, *rowToDomain(row))
	}
	return records, nil
}

func (s *Store) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mails SET delivery = ? WHERE message_id = ?`,
		string(mail.DeliveryDelivered), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark mail as delivered: %w", err)
	}
	return nil
}

func (s *Store) Suppress(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mails SET visible = ? WHERE message_id = ?`,
		false, messageID)
	if err != nil {
		return fmt.Errorf("failed to suppress mail: %w", err)
	}
	return nil
}

func (s *Store) CountByDelivery(ctx context.Context) (int64, int64, error) {
	var counts []struct {
		Delivery string `db:"delivery"`
		Total    int64  `db:"total"`
	}
	err := s.db.SelectContext(ctx, &counts,
		`SELECT delivery, COUNT(*) AS total FROM mails GROUP BY delivery`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count mails: %w", err)
	}

	var pending, delivered int64
	for _, c := range counts {
		switch mail.DeliveryState(c.Delivery) {
		case mail.DeliveryPending:
			pending = c.Total
		case mail.DeliveryDelivered:
			delivered = c.Total
		}
	}
	return pending, delivered, nil
}

// isUniqueViolation recognizes a duplicate primary key error from
// either supported driver: MySQL error 1062 or the SQLite UNIQUE
// constraint message.
func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

func rowToDomain(row dbRecord) *mail.Record {
	return &mail.Record{
		MessageID: row.MessageID,
		ArrivalAt: row.ArrivalAt,
		Subject:   row.Subject,
		Sender:    row.Sender,
		Content:   row.Content,
		Handle:    row.Handle,
		Delivery:  mail.DeliveryState(row.Delivery),
		Visible:   row.Visible,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}
}
