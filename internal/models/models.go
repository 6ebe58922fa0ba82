package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Buyer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Count        int             `json:"count"`
	FreeDelivery bool            `json:"free_delivery"`
	Reserved     bool            `json:"reserved"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Discount is a sale price active for its product between ValidFrom and ValidTo inclusive.
type Discount struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	SalePrice decimal.Decimal `json:"sale_price"`
	ValidFrom time.Time       `json:"valid_from"`
	ValidTo   time.Time       `json:"valid_to"`
}

func (d *Discount) ActiveAt(now time.Time) bool {
	if d == nil {
		return false
	}
	return !now.Before(d.ValidFrom) && !now.After(d.ValidTo)
}

type Order struct {
	ID           int64           `json:"id"`
	BuyerID      int64           `json:"buyer_id"`
	DeliveryType DeliveryType    `json:"delivery_type"`
	PaymentType  PaymentType     `json:"payment_type"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Status       OrderStatus     `json:"status"`
	City         string          `json:"city"`
	Address      string          `json:"address"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	Lines        []OrderLine     `json:"lines,omitempty"`
}

// LinesTotal sums price_in_order * count_in_order over every line, delivery lines included.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func (o *Order) DeliveryLine() *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].Kind == LineKindDelivery {
			return &o.Lines[i]
		}
	}
	return nil
}

type OrderLine struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	Kind         LineKind        `json:"kind"`
	Title        string          `json:"title"`
	CountInOrder int             `json:"count_in_order"`
	PriceInOrder decimal.Decimal `json:"price_in_order"`
	FreeDelivery bool            `json:"free_delivery"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.PriceInOrder.Mul(decimal.NewFromInt(int64(l.CountInOrder)))
}

type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusAccepted OrderStatus = "accepted"
	OrderStatusPaid     OrderStatus = "paid"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid
}

type DeliveryType string

const (
	DeliveryOrdinary DeliveryType = "ordinary"
	DeliveryExpress  DeliveryType = "express"
)

func (d DeliveryType) Valid() bool {
	return d == DeliveryOrdinary || d == DeliveryExpress
}

type PaymentType string

const (
	PaymentOnline  PaymentType = "online"
	PaymentSomeone PaymentType = "someone"
)

func (p PaymentType) Valid() bool {
	return p == PaymentOnline || p == PaymentSomeone
}

type LineKind string

const (
	LineKindProduct  LineKind = "product"
	LineKindDelivery LineKind = "delivery"
)

// Reserved catalog entries that carry delivery pricing.
const (
	SKUDeliveryFree     = "delivery-free"
	SKUDeliveryOrdinary = "delivery-ordinary"
	SKUDeliveryExpress  = "delivery-express"

	SpecFreeThreshold = "free_threshold"
)

type OutboxRecord struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	Topic     string     `json:"topic"`
	Key       string     `json:"key"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
