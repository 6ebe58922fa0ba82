package api

import (
	"time"

	"github.com/safar/shop-checkout/internal/basket"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/store"
	"github.com/shopspring/decimal"
)

type basketRequest struct {
	ID    int64 `json:"id"`
	Count int   `json:"count"`
}

type confirmRequest struct {
	DeliveryType string `json:"deliveryType"`
	PaymentType  string `json:"paymentType"`
	City         string `json:"city"`
	Address      string `json:"address"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type orderIDResponse struct {
	OrderID int64 `json:"orderId"`
}

type basketItem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
	Price string `json:"price"`
	Total string `json:"total"`
}

type basketResponse struct {
	Items []basketItem `json:"items"`
	Count int          `json:"count"`
	Total string       `json:"total"`
}

type orderLine struct {
	ProductID int64  `json:"productId"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Count     int    `json:"count"`
	Price     string `json:"price"`
	Total     string `json:"total"`
}

type orderResponse struct {
	ID           int64       `json:"id"`
	Status       string      `json:"status"`
	DeliveryType string      `json:"deliveryType,omitempty"`
	PaymentType  string      `json:"paymentType,omitempty"`
	City         string      `json:"city"`
	Address      string      `json:"address"`
	TotalCost    string      `json:"totalCost"`
	CreatedAt    string      `json:"createdAt"`
	PaidAt       string      `json:"paidAt,omitempty"`
	Lines        []orderLine `json:"lines,omitempty"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
	HasMore    bool            `json:"hasMore"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Formatter renders timestamps with a configured layout and location.
type Formatter struct {
	Layout   string
	Location *time.Location
}

func (f Formatter) Time(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(f.Layout)
}

// toBasketResponse lists the entries whose product is still sellable and
// totals only those. The ids of the skipped entries are returned.
func toBasketResponse(b *basket.Basket, products map[int64]models.Product) (basketResponse, []int64) {
	resp := basketResponse{Items: []basketItem{}}
	total := decimal.Zero
	var stale []int64
	for _, e := range b.Entries() {
		product, ok := products[e.ProductID]
		if !ok || product.Reserved {
			stale = append(stale, e.ProductID)
			continue
		}
		resp.Items = append(resp.Items, basketItem{
			ID:    e.ProductID,
			Title: product.Title,
			Count: e.Quantity,
			Price: money(e.UnitPrice),
			Total: money(e.Subtotal()),
		})
		resp.Count += e.Quantity
		total = total.Add(e.Subtotal())
	}
	resp.Total = money(total)
	return resp, stale
}

func (f Formatter) order(o *models.Order, withLines bool) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		Status:       string(o.Status),
		DeliveryType: string(o.DeliveryType),
		PaymentType:  string(o.PaymentType),
		City:         o.City,
		Address:      o.Address,
		TotalCost:    money(o.TotalCost),
		CreatedAt:    f.Time(o.CreatedAt),
	}
	// Delivery and payment are column defaults until the buyer confirms.
	if o.Status == models.OrderStatusCreated {
		resp.DeliveryType = ""
		resp.PaymentType = ""
	}
	if o.PaidAt != nil {
		resp.PaidAt = f.Time(*o.PaidAt)
	}
	if withLines {
		resp.Lines = make([]orderLine, 0, len(o.Lines))
		for _, line := range o.Lines {
			resp.Lines = append(resp.Lines, orderLine{
				ProductID: line.ProductID,
				Kind:      string(line.Kind),
				Title:     line.Title,
				Count:     line.CountInOrder,
				Price:     money(line.PriceInOrder),
				Total:     money(line.Subtotal()),
			})
		}
	}
	return resp
}

func (f Formatter) orderList(page *store.CursorPage) orderListResponse {
	resp := orderListResponse{
		Orders:     make([]orderResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for i := range page.Items {
		resp.Orders = append(resp.Orders, f.order(&page.Items[i], false))
	}
	return resp
}
