package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/safar/shop-checkout/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() Event {
	order := &models.Order{
		ID:        7,
		TotalCost: decimal.RequireFromString("1700.00"),
		Lines: []models.OrderLine{
			{Title: "Kettle", CountInOrder: 1, PriceInOrder: decimal.RequireFromString("1500.00")},
			{Title: "Delivery", CountInOrder: 1, PriceInOrder: decimal.RequireFromString("200.00"), Kind: models.LineKindDelivery},
		},
	}
	buyer := &models.Buyer{ID: 3, Email: "anna@example.com", Name: "Anna Berzina"}
	return OrderPaid("3f1c2f4e-0d6a-4b8e-9b5a-1e2d3c4b5a69", order, buyer, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

type fakeOutbox struct {
	mu      sync.Mutex
	records []models.OutboxRecord
}

func (o *fakeOutbox) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []models.OutboxRecord
	for _, rec := range o.records {
		if rec.SentAt == nil {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkOutboxSent(ctx context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	for i := range o.records {
		if o.records[i].ID == id {
			o.records[i].SentAt = &now
		}
	}
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	keys     []string
	failOn   string
	received chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	if p.received != nil {
		p.received <- struct{}{}
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func pendingRecords(keys ...string) []models.OutboxRecord {
	records := make([]models.OutboxRecord, len(keys))
	for i, key := range keys {
		records[i] = models.OutboxRecord{ID: int64(i + 1), Topic: "shop.orders", Key: key, Payload: []byte(`{}`)}
	}
	return records
}

func TestRelayFlushPublishesInOrderAcrossBatches(t *testing.T) {
	outbox := &fakeOutbox{records: pendingRecords("1", "2", "3", "4", "5")}
	publisher := &fakePublisher{}
	relay := NewRelay(outbox, publisher, time.Second, 2, nil, discardLogger())

	sent, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if sent != 5 {
		t.Errorf("Expected 5 records sent, got %d", sent)
	}
	if got := strings.Join(publisher.keys, ","); got != "1,2,3,4,5" {
		t.Errorf("Expected publish order 1,2,3,4,5, got %s", got)
	}

	pending, _ := outbox.FetchPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Errorf("Expected no pending records, got %d", len(pending))
	}
}

func TestRelayFlushStopsAtFailure(t *testing.T) {
	outbox := &fakeOutbox{records: pendingRecords("1", "2", "3")}
	publisher := &fakePublisher{failOn: "2"}
	relay := NewRelay(outbox, publisher, time.Second, 10, nil, discardLogger())

	sent, err := relay.Flush(context.Background())
	if err == nil {
		t.Fatal("Expected flush error")
	}
	if sent != 1 {
		t.Errorf("Expected 1 record sent, got %d", sent)
	}

	pending, _ := outbox.FetchPendingOutbox(context.Background(), 10)
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending records, got %d", len(pending))
	}
}

func TestRelayWakeTriggersFlush(t *testing.T) {
	outbox := &fakeOutbox{}
	publisher := &fakePublisher{received: make(chan struct{}, 1)}
	relay := NewRelay(outbox, publisher, time.Hour, 10, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	outbox.mu.Lock()
	outbox.records = pendingRecords("9")
	outbox.mu.Unlock()

	// Wake repeatedly; the first wake may be consumed before the record exists.
	deadline := time.After(5 * time.Second)
	for published := false; !published; {
		relay.Wake()
		select {
		case <-publisher.received:
			published = true
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("Relay did not publish after wake")
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context canceled, got %v", err)
	}
}

type fakeInbox struct {
	seen map[string]bool
}

func (i *fakeInbox) RecordInboxEvent(ctx context.Context, eventID string) (bool, error) {
	if i.seen[eventID] {
		return false, nil
	}
	i.seen[eventID] = true
	return true, nil
}

type recordingMailer struct {
	sent []Event
	err  error
}

func (m *recordingMailer) SendOrderPaid(ctx context.Context, evt Event) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, evt)
	return nil
}

func TestConsumerDeduplicatesByEventID(t *testing.T) {
	mailer := &recordingMailer{}
	consumer := NewConsumer(&fakeInbox{seen: map[string]bool{}}, mailer, nil, discardLogger())

	payload, err := json.Marshal(testEvent())
	if err != nil {
		t.Fatalf("Encode event: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := consumer.Handle(context.Background(), payload); err != nil {
			t.Fatalf("Handle delivery %d: %v", i, err)
		}
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("Expected 1 email, got %d", len(mailer.sent))
	}
	if mailer.sent[0].BuyerEmail != "anna@example.com" {
		t.Errorf("Expected email to anna@example.com, got %s", mailer.sent[0].BuyerEmail)
	}
}

func TestConsumerRejectsMalformedEvents(t *testing.T) {
	consumer := NewConsumer(&fakeInbox{seen: map[string]bool{}}, &recordingMailer{}, nil, discardLogger())

	tests := []string{
		`not json`,
		`{"type":"order.paid","buyer_email":"a@b.c"}`,
		`{"event_id":"x","type":"order.created","buyer_email":"a@b.c"}`,
	}

	for _, payload := range tests {
		err := consumer.Handle(context.Background(), []byte(payload))
		if !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("Payload %s: expected malformed event, got %v", payload, err)
		}
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func TestConsumerRunCommitsEveryMessage(t *testing.T) {
	payload, _ := json.Marshal(testEvent())

	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: payload},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: payload},
		},
		cancel: cancel,
	}
	mailer := &recordingMailer{}
	consumer := NewConsumer(&fakeInbox{seen: map[string]bool{}}, mailer, nil, discardLogger())

	err := consumer.Run(ctx, reader)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context canceled, got %v", err)
	}

	if len(reader.committed) != 3 {
		t.Errorf("Expected 3 commits, got %d", len(reader.committed))
	}
	if len(mailer.sent) != 1 {
		t.Errorf("Expected 1 email, got %d", len(mailer.sent))
	}
}

func TestResendMailerSendsOrderEmail(t *testing.T) {
	var got sendRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("Expected path /emails, got %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mailer, err := NewResendMailer("re_test", "Shop <admin@myshop.com>", srv.URL)
	if err != nil {
		t.Fatalf("New mailer: %v", err)
	}

	if err := mailer.SendOrderPaid(context.Background(), testEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if auth != "Bearer re_test" {
		t.Errorf("Expected bearer auth, got %q", auth)
	}
	if got.Subject != "Order nr. 7" {
		t.Errorf("Expected subject 'Order nr. 7', got %q", got.Subject)
	}
	if len(got.To) != 1 || got.To[0] != "anna@example.com" {
		t.Errorf("Expected recipient anna@example.com, got %v", got.To)
	}
	if !strings.Contains(got.HTML, "Total: 1700.00") {
		t.Errorf("Expected total in body, got %s", got.HTML)
	}
	if !strings.Contains(got.HTML, "Kettle x 1: 1500.00") {
		t.Errorf("Expected line in body, got %s", got.HTML)
	}
}

func TestResendMailerReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid from", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	mailer, err := NewResendMailer("re_test", "bad", srv.URL)
	if err != nil {
		t.Fatalf("New mailer: %v", err)
	}

	err = mailer.SendOrderPaid(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Errorf("Expected status 422 in error, got %v", err)
	}
}

func TestNewResendMailerRequiresKey(t *testing.T) {
	if _, err := NewResendMailer("", "from", "http://localhost"); err == nil {
		t.Error("Expected error without API key")
	}
}
