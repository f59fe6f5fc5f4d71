package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/mailgram/mailgram/internal/domain/mail"
	"github.com/mailgram/mailgram/internal/service/delivery"
	"github.com/mailgram/mailgram/internal/service/ingestion"
)

type fakeIngestor struct {
	calls  int
	result ingestion.Result
	err    error
}

func (f *fakeIngestor) Run(ctx context.Context) (ingestion.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeDeliverer struct {
	calls  int
	result delivery.Result
	err    error
}

func (f *fakeDeliverer) Run(ctx context.Context) (delivery.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeChannel struct {
	sent []string
}

func (f *fakeChannel) PushText(ctx context.Context, userID, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

type fakeStore struct {
	pending, delivered int64
}

func (f *fakeStore) FindByMessageID(ctx context.Context, id string) (*mail.Record, error) {
	return nil, nil
}
func (f *fakeStore) Insert(ctx context.Context, record *mail.Record) error { return nil }
func (f *fakeStore) LatestCursor(ctx context.Context) (int64, bool, error) { return 0, false, nil }
func (f *fakeStore) PendingForDelivery(ctx context.Context, limit int) ([]mail.Record, error) {
	return nil, nil
}
func (f *fakeStore) MarkDelivered(ctx context.Context, id string) error { return nil }
func (f *fakeStore) Suppress(ctx context.Context, id string) error      { return nil }
func (f *fakeStore) CountByDelivery(ctx context.Context) (int64, int64, error) {
	return f.pending, f.delivered, nil
}

func newTestHandler(ing *fakeIngestor, del *fakeDeliverer, ch *fakeChannel, store *fakeStore) *LineWebhookHandler {
	return NewLineWebhookHandler(ing, del, ch, store, "owner", "secret")
}

func TestFetchRunsIngestionThenDelivery(t *testing.T) {
	ing := &fakeIngestor{result: ingestion.Result{Fetched: 2, Ingested: 2}}
	del := &fakeDeliverer{result: delivery.Result{Pending: 2, Delivered: 2}}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "fetch"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if ing.calls != 1 || del.calls != 1 {
		t.Errorf("ingestor calls = %d, deliverer calls = %d", ing.calls, del.calls)
	}
	if len(ch.sent) != 0 {
		t.Errorf("no reply expected when mail was delivered, got %q", ch.sent)
	}
}

func TestFetchWithNothingDeliveredReplies(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "fetch"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "No new mail." {
		t.Errorf("sent = %q, want the no-new-mail notice", ch.sent)
	}
}

func TestFetchIngestionFailureStillDelivers(t *testing.T) {
	ing := &fakeIngestor{err: errors.New("gmail down")}
	del := &fakeDeliverer{result: delivery.Result{Pending: 1, Delivered: 1}}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "fetch"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if del.calls != 1 {
		t.Error("delivery should still run when ingestion fails")
	}
	for _, text := range ch.sent {
		if strings.Contains(text, "gmail down") {
			t.Errorf("internal error leaked to the user: %q", text)
		}
	}
}

func TestQuickFetchSkipsIngestion(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{result: delivery.Result{Pending: 1, Delivered: 1}}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "quick fetch"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if ing.calls != 0 {
		t.Error("quick fetch must not hit the mail source")
	}
	if del.calls != 1 {
		t.Error("quick fetch should run delivery")
	}
}

func TestStatusRepliesWithCounts(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestHandler(&fakeIngestor{}, &fakeDeliverer{}, ch, &fakeStore{pending: 3, delivered: 7})

	if err := h.handleCommand(context.Background(), "status"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(ch.sent) != 1 || !strings.Contains(ch.sent[0], "3 pending") || !strings.Contains(ch.sent[0], "7 delivered") {
		t.Errorf("status reply = %q", ch.sent)
	}
}

func TestUnknownCommandRepliesHelp(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "hello?"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if ing.calls != 0 || del.calls != 0 {
		t.Error("unknown command must not trigger pipelines")
	}
	if len(ch.sent) != 1 || !strings.Contains(ch.sent[0], "Commands:") {
		t.Errorf("help reply = %q", ch.sent)
	}
}

func TestFetchAllSendsFailedStaysSilent(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{result: delivery.Result{Pending: 2, Delivered: 0, Failed: 2}}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	if err := h.handleCommand(context.Background(), "fetch"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("mail is still pending, reply %q is misleading", ch.sent)
	}
}

func TestNonOwnerTextMessageIsIgnored(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	src := webhook.UserSource{Source: webhook.Source{Type: "user"}, UserId: "intruder"}
	h.handleTextMessage(context.Background(), src, "fetch")

	if ing.calls != 0 || del.calls != 0 {
		t.Errorf("non-owner triggered pipelines: ingestor=%d deliverer=%d", ing.calls, del.calls)
	}
	if len(ch.sent) != 0 {
		t.Errorf("non-owner got a reply: %q", ch.sent)
	}
}

func TestOwnerTextMessageDispatchesCommand(t *testing.T) {
	ing := &fakeIngestor{result: ingestion.Result{Fetched: 1, Ingested: 1}}
	del := &fakeDeliverer{result: delivery.Result{Pending: 1, Delivered: 1}}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	src := webhook.UserSource{Source: webhook.Source{Type: "user"}, UserId: "owner"}
	h.handleTextMessage(context.Background(), src, "fetch")

	if ing.calls != 1 || del.calls != 1 {
		t.Errorf("owner fetch did not run pipelines: ingestor=%d deliverer=%d", ing.calls, del.calls)
	}
}

func TestSourceWithoutUserIDIsIgnored(t *testing.T) {
	ing := &fakeIngestor{}
	del := &fakeDeliverer{}
	ch := &fakeChannel{}
	h := newTestHandler(ing, del, ch, &fakeStore{})

	src := webhook.GroupSource{Source: webhook.Source{Type: "group"}, GroupId: "g1"}
	h.handleTextMessage(context.Background(), src, "fetch")

	if ing.calls != 0 || del.calls != 0 || len(ch.sent) != 0 {
		t.Error("source without a user id must be dropped")
	}
}

func TestNormalizeCommand(t *testing.T) {
	for in, want := range map[string]string{
		"  Fetch ":     "fetch",
		"QUICK FETCH":  "quickfetch",
		"quickfetch":   "quickfetch",
		"Status":       "status",
		"do something": "dosomething",
	} {
		if got := normalizeCommand(in); got != want {
			t.Errorf("normalizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
