// Package pricing holds the pure money rules of checkout: which unit price a
// product sells at, what a basket costs and which delivery charge an order gets.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/safar/shop-checkout/internal/models"
	"github.com/shopspring/decimal"
)

// MinPrice is the smallest price a sellable product line may carry.
var MinPrice = decimal.New(1, -2)

var ErrUnknownDeliveryType = errors.New("unknown delivery type")

// LinePrice returns the discount's sale price when it is active at now and the
// product's list price otherwise.
func LinePrice(product models.Product, discount *models.Discount, now time.Time) decimal.Decimal {
	if discount != nil && discount.ProductID == product.ID && discount.ActiveAt(now) {
		return discount.SalePrice
	}
	return product.Price
}

type Item struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func OrderTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// LinesTotal sums product and delivery lines alike.
func LinesTotal(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Rates are read from the reserved delivery entries of the catalog.
type Rates struct {
	Free      models.Product
	Ordinary  models.Product
	Express   models.Product
	Threshold decimal.Decimal
}

type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierExpress  Tier = "express"
)

// Charge is the single delivery line an accepted order carries.
type Charge struct {
	Tier    Tier
	Product models.Product
	Price   decimal.Decimal
}

func (c Charge) Line() models.OrderLine {
	return models.OrderLine{
		ProductID:    c.Product.ID,
		Kind:         models.LineKindDelivery,
		Title:        c.Product.Title,
		CountInOrder: 1,
		PriceInOrder: c.Price,
	}
}

// DeliveryFee picks the delivery charge for the product lines of an order.
// Express is always charged at the express rate. Ordinary delivery is free when
// every product ships free or the product subtotal reaches the threshold, and
// costs the standard rate otherwise.
func DeliveryFee(lines []models.OrderLine, deliveryType models.DeliveryType, rates Rates) (Charge, error) {
	switch deliveryType {
	case models.DeliveryExpress:
		return Charge{Tier: TierExpress, Product: rates.Express, Price: rates.Express.Price}, nil
	case models.DeliveryOrdinary:
	default:
		return Charge{}, fmt.Errorf("%w: %q", ErrUnknownDeliveryType, deliveryType)
	}

	free := Charge{Tier: TierFree, Product: rates.Free, Price: decimal.Zero}

	products := productLines(lines)
	if allFreeDelivery(products) {
		return free, nil
	}

	if LinesTotal(products).LessThan(rates.Threshold) {
		return Charge{Tier: TierStandard, Product: rates.Ordinary, Price: rates.Ordinary.Price}, nil
	}

	return free, nil
}

func productLines(lines []models.OrderLine) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		if line.Kind != models.LineKindDelivery {
			out = append(out, line)
		}
	}
	return out
}

func allFreeDelivery(lines []models.OrderLine) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if !line.FreeDelivery {
			return false
		}
	}
	return true
}

// ValidateDiscount enforces the write-time rules for a discount row.
func ValidateDiscount(d models.Discount) error {
	if d.SalePrice.LessThan(MinPrice) {
		return fmt.Errorf("sale price %s below %s", d.SalePrice, MinPrice)
	}
	if d.ValidTo.Before(d.ValidFrom) {
		return errors.New("discount window ends before it starts")
	}
	return nil
}
