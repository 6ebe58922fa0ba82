// Package checkout drives an order from the basket through confirmation to
// payment. Orders move created -> accepted -> paid and never back.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/safar/shop-checkout/internal/basket"
	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/metrics"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/notify"
	"github.com/safar/shop-checkout/internal/payment"
	"github.com/safar/shop-checkout/internal/pricing"
	"github.com/safar/shop-checkout/internal/store"
)

var (
	ErrEmptyBasket     = errors.New("basket is empty")
	ErrInvalidDelivery = errors.New("invalid delivery details")
	ErrInvalidPayment  = errors.New("invalid payment type")
)

const (
	maxCityLen    = 40
	maxAddressLen = 150
)

type Orders interface {
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	DeliveryRates(ctx context.Context) (pricing.Rates, error)
	GetBuyer(ctx context.Context, id int64) (*models.Buyer, error)
	CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error)
	ConfirmOrder(ctx context.Context, req store.ConfirmOrderRequest) (*models.Order, error)
	MarkPaid(ctx context.Context, req store.MarkPaidRequest) (*models.Order, bool, error)
}

type Baskets interface {
	Get(ctx context.Context, sessionID string) (*basket.Basket, error)
	Clear(ctx context.Context, sessionID string) error
}

type Gate interface {
	Validate(ctx context.Context, card payment.Card) error
}

// Waker is notified after a paid order's event is committed.
type Waker interface {
	Wake()
}

type Config struct {
	Orders  Orders
	Baskets Baskets
	Gate    Gate
	Waker   Waker
	Topic   string
	Metrics *metrics.Metrics
}

type Service struct {
	orders  Orders
	baskets Baskets
	gate    Gate
	waker   Waker
	topic   string
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

func NewService(cfg Config) *Service {
	return &Service{
		orders:  cfg.Orders,
		baskets: cfg.Baskets,
		gate:    cfg.Gate,
		waker:   cfg.Waker,
		topic:   cfg.Topic,
		metrics: cfg.Metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CreateOrder turns the session's basket into an order in status created.
// Lines keep the unit price stored in the basket. Entries whose product no
// longer exists are logged and left out. The basket itself is kept.
func (s *Service) CreateOrder(ctx context.Context, sessionID string, buyerID int64) (*models.Order, error) {
	b, err := s.baskets.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}
	if b.IsEmpty() {
		return nil, ErrEmptyBasket
	}

	products, err := s.orders.GetProductsByIDs(ctx, b.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load basket products: %w", err)
	}

	var lines []store.OrderLineRequest
	for _, entry := range b.Entries() {
		product, ok := products[entry.ProductID]
		if !ok {
			slog.ErrorContext(ctx, "basket references missing product", "product_id", entry.ProductID)
			continue
		}
		if product.Reserved {
			slog.ErrorContext(ctx, "basket references reserved product", "product_id", entry.ProductID)
			continue
		}
		lines = append(lines, store.OrderLineRequest{
			ProductID: entry.ProductID,
			Count:     entry.Quantity,
			Price:     entry.UnitPrice,
		})
	}
	if len(lines) == 0 {
		return nil, ErrEmptyBasket
	}

	order, err := s.orders.CreateOrder(ctx, store.CreateOrderRequest{BuyerID: buyerID, Lines: lines})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(models.OrderStatusCreated))
	slog.InfoContext(ctx, "order created", "order_id", order.ID, "lines", len(order.Lines), "total", order.TotalCost.StringFixed(2))
	return order, nil
}

// GetOrder hides orders of other buyers behind ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, buyerID, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error) {
	return s.orders.ListOrders(ctx, buyerID, cursor, limit)
}

type ConfirmRequest struct {
	OrderID      int64
	BuyerID      int64
	DeliveryType models.DeliveryType
	PaymentType  models.PaymentType
	City         string
	Address      string
}

func (r ConfirmRequest) validate() error {
	if !r.DeliveryType.Valid() {
		return fmt.Errorf("%w: unknown delivery type %q", ErrInvalidDelivery, r.DeliveryType)
	}
	if !r.PaymentType.Valid() {
		return fmt.Errorf("%w: unknown payment type %q", ErrInvalidPayment, r.PaymentType)
	}
	if utf8.RuneCountInString(r.City) > maxCityLen {
		return fmt.Errorf("%w: city longer than %d characters", ErrInvalidDelivery, maxCityLen)
	}
	if utf8.RuneCountInString(r.Address) > maxAddressLen {
		return fmt.Errorf("%w: address longer than %d characters", ErrInvalidDelivery, maxAddressLen)
	}
	return nil
}

// ConfirmOrder moves an order to accepted with exactly one delivery line.
// Confirming again replaces the delivery line, so repeating the same request
// leaves the order unchanged.
func (s *Service) ConfirmOrder(ctx context.Context, req ConfirmRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	rates, err := s.orders.DeliveryRates(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.ConfirmOrder(ctx, store.ConfirmOrderRequest{
		OrderID:      req.OrderID,
		BuyerID:      req.BuyerID,
		DeliveryType: req.DeliveryType,
		PaymentType:  req.PaymentType,
		City:         req.City,
		Address:      req.Address,
		DeliveryLine: func(lines []models.OrderLine) (models.OrderLine, error) {
			charge, err := pricing.DeliveryFee(lines, req.DeliveryType, rates)
			if err != nil {
				return models.OrderLine{}, err
			}
			return charge.Line(), nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(models.OrderStatusAccepted))
	slog.InfoContext(ctx, "order accepted",
		"order_id", order.ID,
		"delivery_type", order.DeliveryType,
		"total", order.TotalCost.StringFixed(2),
	)
	return order, nil
}

type PayRequest struct {
	OrderID   int64
	BuyerID   int64
	SessionID string
	Card      payment.Card
}

type PayResult struct {
	Order       *models.Order
	AlreadyPaid bool
}

// PayOrder validates the card and settles the order. The first successful
// call flips the order to paid, records the order.paid event, and clears the
// session basket. Later calls report AlreadyPaid and change nothing.
// A rejected card leaves the order untouched.
func (s *Service) PayOrder(ctx context.Context, req PayRequest) (*PayResult, error) {
	current, err := s.GetOrder(ctx, req.BuyerID, req.OrderID)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Validate(ctx, req.Card); err != nil {
		var rejection *payment.RejectionError
		if errors.As(err, &rejection) {
			s.metrics.Payment("rejected")
			slog.InfoContext(ctx, "payment rejected", "order_id", req.OrderID, "field", rejection.Field)
		}
		return nil, err
	}

	buyer, err := s.orders.GetBuyer(ctx, current.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}

	order, transitioned, err := s.orders.MarkPaid(ctx, store.MarkPaidRequest{
		OrderID: req.OrderID,
		BuyerID: req.BuyerID,
		Event: func(order *models.Order) (store.OutboxMessage, error) {
			evt := notify.OrderPaid(s.newID(), order, buyer, s.now())
			return store.OutboxMessage{
				EventID: evt.EventID,
				Topic:   s.topic,
				Key:     evt.Key(),
				Payload: evt,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if !transitioned {
		s.metrics.Payment("already_paid")
		slog.InfoContext(ctx, "order already paid", "order_id", order.ID)
		return &PayResult{Order: order, AlreadyPaid: true}, nil
	}

	s.metrics.Payment("accepted")
	s.metrics.OrderTransition(string(models.OrderStatusPaid))
	slog.InfoContext(ctx, "order paid", "order_id", order.ID, "total", order.TotalCost.StringFixed(2))

	if err := s.baskets.Clear(ctx, req.SessionID); err != nil {
		slog.ErrorContext(ctx, "clear basket after payment", "order_id", order.ID, "error", err)
	}
	if s.waker != nil {
		s.waker.Wake()
	}

	return &PayResult{Order: order}, nil
}
