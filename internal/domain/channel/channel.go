package channel

import "context"

// Channel sends outbound text to a single recipient on the chat
// platform.
type Channel interface {
	PushText(ctx context.Context, userID, text string) error
}
