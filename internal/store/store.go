package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/pricing"
)

// Store binds the package functions to one connection pool so services can
// depend on narrow interfaces.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return GetProduct(ctx, s.db, id)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	return GetProductsByIDs(ctx, s.db, ids)
}

func (s *Store) ActiveDiscount(ctx context.Context, productID int64, now time.Time) (*models.Discount, error) {
	return ActiveDiscount(ctx, s.db, productID, now)
}

func (s *Store) ReserveStock(ctx context.Context, productID int64, count int) (int, error) {
	return ReserveStock(ctx, s.db, productID, count)
}

func (s *Store) RestoreStock(ctx context.Context, productID int64, count int) error {
	return RestoreStock(ctx, s.db, productID, count)
}

func (s *Store) DeliveryRates(ctx context.Context) (pricing.Rates, error) {
	return DeliveryRates(ctx, s.db)
}

func (s *Store) EnsureBuyer(ctx context.Context, email, name string) (*models.Buyer, error) {
	return EnsureBuyer(ctx, s.db, email, name)
}

func (s *Store) GetBuyer(ctx context.Context, id int64) (*models.Buyer, error) {
	return GetBuyer(ctx, s.db, id)
}

func (s *Store) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	return CreateOrder(ctx, s.db, req)
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return GetOrder(ctx, s.db, id)
}

func (s *Store) ListOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	return ListOrdersCursor(ctx, s.db, buyerID, cursor, limit)
}

func (s *Store) ConfirmOrder(ctx context.Context, req ConfirmOrderRequest) (*models.Order, error) {
	return ConfirmOrder(ctx, s.db, req)
}

func (s *Store) MarkPaid(ctx context.Context, req MarkPaidRequest) (*models.Order, bool, error) {
	return MarkPaid(ctx, s.db, req)
}

func (s *Store) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	return FetchPendingOutbox(ctx, s.db, limit)
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64) error {
	return MarkOutboxSent(ctx, s.db, id)
}

func (s *Store) RecordInboxEvent(ctx context.Context, eventID string) (bool, error) {
	return RecordInboxEvent(ctx, s.db, eventID)
}
