package notify

import (
	"errors"
	"strconv"
	"time"

	"github.com/safar/shop-checkout/internal/models"
	"github.com/shopspring/decimal"
)

const TypeOrderPaid = "order.paid"

var ErrMalformedEvent = errors.New("malformed event")

type Event struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	OrderID    int64           `json:"order_id"`
	BuyerEmail string          `json:"buyer_email"`
	BuyerName  string          `json:"buyer_name"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Lines      []EventLine     `json:"lines"`
	CreatedAt  time.Time       `json:"created_at"`
}

type EventLine struct {
	Title string          `json:"title"`
	Count int             `json:"count"`
	Price decimal.Decimal `json:"price"`
}

func OrderPaid(eventID string, order *models.Order, buyer *models.Buyer, now time.Time) Event {
	lines := make([]EventLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, EventLine{
			Title: line.Title,
			Count: line.CountInOrder,
			Price: line.PriceInOrder,
		})
	}

	return Event{
		EventID:    eventID,
		Type:       TypeOrderPaid,
		OrderID:    order.ID,
		BuyerEmail: buyer.Email,
		BuyerName:  buyer.Name,
		TotalCost:  order.TotalCost,
		Lines:      lines,
		CreatedAt:  now.UTC(),
	}
}

// Key partitions events by order so one order's events stay ordered.
func (e Event) Key() string {
	return strconv.FormatInt(e.OrderID, 10)
}

func (e Event) Validate() error {
	switch {
	case e.EventID == "":
		return errors.Join(ErrMalformedEvent, errors.New("missing event_id"))
	case e.Type != TypeOrderPaid:
		return errors.Join(ErrMalformedEvent, errors.New("unknown type "+strconv.Quote(e.Type)))
	case e.BuyerEmail == "":
		return errors.Join(ErrMalformedEvent, errors.New("missing buyer_email"))
	}
	return nil
}
