package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/mailgram/mailgram/internal/domain/channel"
	"github.com/mailgram/mailgram/internal/domain/mail"
	"github.com/mailgram/mailgram/internal/service/delivery"
	"github.com/mailgram/mailgram/internal/service/ingestion"
)

const helpText = "Commands:\n• fetch - check the mailbox and deliver new mail\n• quick fetch - deliver already stored mail\n• status - show record counts"

type Ingestor interface {
	Run(ctx context.Context) (ingestion.Result, error)
}

type Deliverer interface {
	Run(ctx context.Context) (delivery.Result, error)
}

// LineWebhookHandler receives bot events and dispatches the command
// surface. Only the configured owner may trigger the pipelines; events
// from anyone else are logged and dropped.
type LineWebhookHandler struct {
	ingestor      Ingestor
	deliverer     Deliverer
	ch            channel.Channel
	store         mail.Store
	ownerID       string
	channelSecret string
}

func NewLineWebhookHandler(ingestor Ingestor, deliverer Deliverer, ch channel.Channel, store mail.Store, ownerID, channelSecret string) *LineWebhookHandler {
	return &LineWebhookHandler{
		ingestor:      ingestor,
		deliverer:     deliverer,
		ch:            ch,
		store:         store,
		ownerID:       ownerID,
		channelSecret: channelSecret,
	}
}

func (h *LineWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Allow GET for verification
	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse webhook request (includes signature validation)
	cb, err := webhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		slog.Error("failed to parse webhook request", "error", err)
		http.Error(w, "Failed to parse request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	for _, event := range cb.Events {
		switch e := event.(type) {
		case webhook.MessageEvent:
			h.handleMessageEvent(ctx, e)
		default:
			slog.Info("received unhandled event", "type", fmt.Sprintf("%T", event))
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (h *LineWebhookHandler) handleMessageEvent(ctx context.Context, event webhook.MessageEvent) {
	switch message := event.Message.(type) {
	case webhook.TextMessageContent:
		h.handleTextMessage(ctx, event.Source, message.Text)
	default:
		slog.Info("received unhandled message type", "type", fmt.Sprintf("%T", message))
	}
}

func (h *LineWebhookHandler) handleTextMessage(ctx context.Context, source webhook.SourceInterface, text string) {
	userID := extractUserID(source)
	if userID == "" {
		slog.Error("could not extract user ID from source")
		return
	}

	if userID != h.ownerID {
		slog.Warn("ignoring message from non-owner", "user_id", userID)
		return
	}

	if err := h.handleCommand(ctx, text); err != nil {
		slog.Error("failed to process command",
			"text", text,
			"error", err,
		)
	}
}

// handleCommand runs the keyword dispatch for the owner. Pipeline
// failures are logged, never echoed to the user.
func (h *LineWebhookHandler) handleCommand(ctx context.Context, text string) error {
	switch normalizeCommand(text) {
	case "fetch":
		if _, err := h.ingestor.Run(ctx); err != nil {
			slog.Error("ingestion failed", "error", err)
		}
		return h.deliverPending(ctx)
	case "quickfetch":
		return h.deliverPending(ctx)
	case "status":
		pending, delivered, err := h.store.CountByDelivery(ctx)
		if err != nil {
			return fmt.Errorf("failed to count records: %w", err)
		}
		status := fmt.Sprintf("📬 %d pending, %d delivered", pending, delivered)
		return h.ch.PushText(ctx, h.ownerID, status)
	default:
		return h.ch.PushText(ctx, h.ownerID, helpText)
	}
}

// deliverPending runs the delivery pipeline and replies "No new mail."
// when a user-triggered run finds nothing pending. Scheduled runs stay
// silent when empty; only this command path sends the notice. A run
// where sends failed keeps the records pending and stays silent too,
// so the user is not told the mailbox is empty while mail is waiting.
func (h *LineWebhookHandler) deliverPending(ctx context.Context) error {
	result, err := h.deliverer.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to deliver: %w", err)
	}
	if result.Pending == 0 {
		return h.ch.PushText(ctx, h.ownerID, "No new mail.")
	}
	return nil
}

func normalizeCommand(text string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(text)), " ", "")
}

func extractUserID(source webhook.SourceInterface) string {
	sourceData, _ := json.Marshal(source)
	var sourceMap map[string]interface{}
	if err := json.Unmarshal(sourceData, &sourceMap); err != nil {
		return ""
	}
	if uid, ok := sourceMap["userId"].(string); ok {
		return uid
	}
	return ""
}
