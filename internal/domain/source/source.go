package source

import "context"

// Candidate is a message summary returned by a listing query.
type Candidate struct {
	ID string
}

// Message is a fully fetched message with display fields already
// extracted. Subject, Sender and Content are never empty; the adapter
// substitutes placeholder text when extraction fails.
type Message struct {
	ID        string
	ArrivalAt int64 // milliseconds since epoch
	Subject   string
	Sender    string
	Content   string
}

// Query bounds a candidate listing. MinArrival of zero means unbounded.
type Query struct {
	Label      string
	UnreadOnly bool
	MinArrival int64
}

type Source interface {
	// ListCandidates drains provider-side pagination and returns the
	// full candidate set for the query.
	ListCandidates(ctx context.Context, q Query) ([]Candidate, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
}
