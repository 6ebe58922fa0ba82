package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/pricing"
	"github.com/safar/shop-checkout/internal/store"
	"github.com/shopspring/decimal"
)

// fakeOrders keeps orders in memory with the same transition rules as the
// Postgres store.
type fakeOrders struct {
	mu       sync.Mutex
	products map[int64]models.Product
	buyers   map[int64]*models.Buyer
	orders   map[int64]*models.Order
	outbox   []store.OutboxMessage
	rates    pricing.Rates
	nextID   int64
}

func newFakeOrders() *fakeOrders {
	rates := pricing.Rates{
		Free:      models.Product{ID: 901, SKU: models.SKUDeliveryFree, Title: "Free delivery", Reserved: true},
		Ordinary:  models.Product{ID: 902, SKU: models.SKUDeliveryOrdinary, Title: "Delivery", Price: decimal.RequireFromString("200.00"), Reserved: true},
		Express:   models.Product{ID: 903, SKU: models.SKUDeliveryExpress, Title: "Express delivery", Price: decimal.RequireFromString("500.00"), Reserved: true},
		Threshold: decimal.RequireFromString("2000.00"),
	}

	return &fakeOrders{
		products: map[int64]models.Product{
			1:   {ID: 1, Title: "Laptop", Price: decimal.RequireFromString("67399.00"), Count: 10},
			2:   {ID: 2, Title: "Kettle", Price: decimal.RequireFromString("1500.00"), Count: 10},
			3:   {ID: 3, Title: "Sticker", Price: decimal.RequireFromString("10.00"), Count: 10, FreeDelivery: true},
			903: rates.Express,
		},
		buyers: map[int64]*models.Buyer{
			1: {ID: 1, Email: "anna@example.com", Name: "Anna Berzina"},
			2: {ID: 2, Email: "janis@example.com", Name: "Janis Ozols"},
		},
		orders: map[int64]*models.Order{},
		rates:  rates,
	}
}

func (f *fakeOrders) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := map[int64]models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeOrders) DeliveryRates(ctx context.Context) (pricing.Rates, error) {
	return f.rates, nil
}

func (f *fakeOrders) GetBuyer(ctx context.Context, id int64) (*models.Buyer, error) {
	buyer, ok := f.buyers[id]
	if !ok {
		return nil, database.ErrBuyerNotFound
	}
	return buyer, nil
}

func (f *fakeOrders) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	order := &models.Order{
		ID:        f.nextID,
		BuyerID:   req.BuyerID,
		Status:    models.OrderStatusCreated,
		CreatedAt: time.Now(),
	}
	for _, line := range req.Lines {
		product := f.products[line.ProductID]
		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:      order.ID,
			ProductID:    line.ProductID,
			Kind:         models.LineKindProduct,
			Title:        product.Title,
			CountInOrder: line.Count,
			PriceInOrder: line.Price,
			FreeDelivery: product.FreeDelivery,
		})
	}
	order.TotalCost = order.LinesTotal()
	f.orders[order.ID] = order
	return copyOrder(order), nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (f *fakeOrders) ListOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := []models.Order{}
	for id := f.nextID; id > 0 && len(items) < limit; id-- {
		if order, ok := f.orders[id]; ok && order.BuyerID == buyerID {
			items = append(items, *copyOrder(order))
		}
	}
	return &store.CursorPage{Items: items}, nil
}

func (f *fakeOrders) lock(orderID, buyerID int64) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok || order.BuyerID != buyerID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrders) ConfirmOrder(ctx context.Context, req store.ConfirmOrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, err := f.lock(req.OrderID, req.BuyerID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusPaid {
		return nil, database.ErrOrderPaid
	}

	delivery, err := req.DeliveryLine(copyOrder(order).Lines)
	if err != nil {
		return nil, err
	}

	lines := order.Lines[:0]
	for _, line := range order.Lines {
		if line.Kind != models.LineKindDelivery {
			lines = append(lines, line)
		}
	}
	order.Lines = append(lines, delivery)
	order.DeliveryType = req.DeliveryType
	order.PaymentType = req.PaymentType
	order.City = req.City
	order.Address = req.Address
	order.Status = models.OrderStatusAccepted
	order.TotalCost = order.LinesTotal()

	return copyOrder(order), nil
}

func (f *fakeOrders) MarkPaid(ctx context.Context, req store.MarkPaidRequest) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, err := f.lock(req.OrderID, req.BuyerID)
	if err != nil {
		return nil, false, err
	}
	if order.Status == models.OrderStatusPaid {
		return copyOrder(order), false, nil
	}

	now := time.Now()
	order.Status = models.OrderStatusPaid
	order.PaidAt = &now

	if req.Event != nil {
		msg, err := req.Event(copyOrder(order))
		if err != nil {
			return nil, false, err
		}
		if _, err := json.Marshal(msg.Payload); err != nil {
			return nil, false, err
		}
		f.outbox = append(f.outbox, msg)
	}

	return copyOrder(order), true, nil
}

func copyOrder(order *models.Order) *models.Order {
	out := *order
	out.Lines = append([]models.OrderLine(nil), order.Lines...)
	return &out
}

type countingWaker struct {
	wakes int
}

func (w *countingWaker) Wake() { w.wakes++ }
