// Package basket keeps the session-scoped list of products a buyer intends to
// order, with the unit price each product had when it was added.
package basket

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrEntryNotFound = errors.New("product not in basket")

type Entry struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (e Entry) Subtotal() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Basket is not safe for concurrent use; a session handles one request at a time.
type Basket struct {
	SessionID string
	entries   map[int64]Entry
	dirty     bool
}

func New(sessionID string) *Basket {
	return &Basket{SessionID: sessionID, entries: make(map[int64]Entry)}
}

// Add increments the quantity of a product already present. A new product
// stores quantity and unitPrice; the stored price never changes afterwards.
func (b *Basket) Add(productID int64, quantity int, unitPrice decimal.Decimal) {
	if quantity <= 0 {
		return
	}
	entry, ok := b.entries[productID]
	if ok {
		entry.Quantity += quantity
	} else {
		entry = Entry{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}
	}
	b.entries[productID] = entry
	b.dirty = true
}

// Remove decrements a product's quantity and drops the entry once it reaches
// zero. It returns how many units actually left the basket.
func (b *Basket) Remove(productID int64, quantity int) int {
	entry, ok := b.entries[productID]
	if !ok || quantity <= 0 {
		return 0
	}

	if entry.Quantity > quantity {
		entry.Quantity -= quantity
		b.entries[productID] = entry
		b.dirty = true
		return quantity
	}

	delete(b.entries, productID)
	b.dirty = true
	return entry.Quantity
}

func (b *Basket) ProductIDs() []int64 {
	ids := make([]int64, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	return ids
}

func (b *Basket) Get(productID int64) (Entry, error) {
	entry, ok := b.entries[productID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// Entries returns the entries ordered by product id.
func (b *Basket) Entries() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (b *Basket) Len() int {
	return len(b.entries)
}

func (b *Basket) IsEmpty() bool {
	return len(b.entries) == 0
}

func (b *Basket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range b.entries {
		total = total.Add(entry.Subtotal())
	}
	return total
}

func (b *Basket) Clear() {
	if len(b.entries) == 0 {
		return
	}
	b.entries = make(map[int64]Entry)
	b.dirty = true
}

// Dirty reports whether the basket changed since it was loaded.
func (b *Basket) Dirty() bool {
	return b.dirty
}

type snapshot struct {
	Entries []Entry `json:"entries"`
}

func (b *Basket) snapshot() snapshot {
	return snapshot{Entries: b.Entries()}
}

func fromSnapshot(sessionID string, s snapshot) *Basket {
	b := New(sessionID)
	for _, entry := range s.Entries {
		if entry.Quantity > 0 {
			b.entries[entry.ProductID] = entry
		}
	}
	return b
}
