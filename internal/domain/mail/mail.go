package mail

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateMessage is returned by Store.Insert when a record with the
// same provider message ID already exists.
var ErrDuplicateMessage = errors.New("mail: duplicate message id")

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
)

// Record is one ingested mailbox message. MessageID is the
// provider-assigned identifier and the sole dedup key. Handle is a short
// surrogate identifier quoted in notification text instead of the raw
// message ID or body.
type Record struct {
	MessageID string
	ArrivalAt int64 // provider receipt time, milliseconds since epoch
	Subject   string
	Sender    string
	Content   string
	Handle    string
	Delivery  DeliveryState
	Visible   bool
	CreatedAt time.Time
}

type Store interface {
	// FindByMessageID returns nil, nil when no record exists.
	FindByMessageID(ctx context.Context, messageID string) (*Record, error)
	// Insert stores a new record as pending and visible. Returns
	// ErrDuplicateMessage if the message ID is already present.
	Insert(ctx context.Context, record *Record) error
	// LatestCursor returns the maximum arrival timestamp across all
	// records, or ok=false when the store is empty.
	LatestCursor(ctx context.Context) (cursor int64, ok bool, err error)
	// PendingForDelivery returns at most limit pending, visible records
	// ordered by arrival time.
	PendingForDelivery(ctx context.Context, limit int) ([]Record, error)
	// MarkDelivered is idempotent; marking an already delivered record
	// is a no-op.
	MarkDelivered(ctx context.Context, messageID string) error
	// Suppress hides a record from delivery queries while keeping it
	// for dedup.
	Suppress(ctx context.Context, messageID string) error
	CountByDelivery(ctx context.Context) (pending, delivered int64, err error)
}
