package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestOutboxAndInbox(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	buyer := mustCreateBuyer(t, db, "outbox@example.com")
	product := mustCreateProduct(t, db, "OBX-001", "100.00", 5, false)

	order, err := CreateOrder(ctx, db, CreateOrderRequest{
		BuyerID: buyer.ID,
		Lines:   []OrderLineRequest{{ProductID: product.ID, Count: 1, Price: product.Price}},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if _, _, err := MarkPaid(ctx, db, MarkPaidRequest{OrderID: order.ID, BuyerID: buyer.ID, Event: paidEvent}); err != nil {
		t.Fatalf("Mark paid: %v", err)
	}

	pending, err := FetchPendingOutbox(ctx, db, 10)
	if err != nil {
		t.Fatalf("Fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending record, got %d", len(pending))
	}
	if pending[0].Topic != "shop.orders" {
		t.Errorf("Expected topic shop.orders, got %s", pending[0].Topic)
	}
	if len(pending[0].Payload) == 0 {
		t.Error("Expected payload to be stored")
	}

	if err := MarkOutboxSent(ctx, db, pending[0].ID); err != nil {
		t.Fatalf("Mark sent: %v", err)
	}

	pending, err = FetchPendingOutbox(ctx, db, 10)
	if err != nil {
		t.Fatalf("Fetch pending after send: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending records, got %d", len(pending))
	}

	eventID := uuid.NewString()

	first, err := RecordInboxEvent(ctx, db, eventID)
	if err != nil {
		t.Fatalf("Record inbox: %v", err)
	}
	if !first {
		t.Error("First delivery should be new")
	}

	first, err = RecordInboxEvent(ctx, db, eventID)
	if err != nil {
		t.Fatalf("Record inbox again: %v", err)
	}
	if first {
		t.Error("Redelivery should be detected")
	}
}
