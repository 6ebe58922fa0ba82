package basket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/pricing"
)

var (
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInvalidQuantity = errors.New("count must be positive")
	ErrNotForSale      = errors.New("product is not for sale")
)

// Catalog is the product lookup and stock keeper the basket works against.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ActiveDiscount(ctx context.Context, productID int64, now time.Time) (*models.Discount, error)
	// ReserveStock takes up to count units and returns how many it took.
	ReserveStock(ctx context.Context, productID int64, count int) (int, error)
	RestoreStock(ctx context.Context, productID int64, count int) error
}

type Service struct {
	store   Store
	catalog Catalog
	now     func() time.Time
}

func NewService(store Store, catalog Catalog) *Service {
	return &Service{store: store, catalog: catalog, now: time.Now}
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Basket, error) {
	return s.store.Load(ctx, sessionID)
}

// Add moves up to count units of a product from catalog stock into the basket.
func (s *Service) Add(ctx context.Context, sessionID string, productID int64, count int) (*Basket, error) {
	if count <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Reserved {
		return nil, ErrNotForSale
	}

	b, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unitPrice := product.Price
	if _, err := b.Get(productID); errors.Is(err, ErrEntryNotFound) {
		discount, err := s.catalog.ActiveDiscount(ctx, productID, s.now())
		if err != nil {
			return nil, fmt.Errorf("lookup discount: %w", err)
		}
		unitPrice = pricing.LinePrice(*product, discount, s.now())
	}

	reserved, err := s.catalog.ReserveStock(ctx, productID, count)
	if err != nil {
		return nil, err
	}
	if reserved == 0 {
		slog.InfoContext(ctx, "product out of stock", "product_id", productID)
		return nil, ErrOutOfStock
	}

	b.Add(productID, reserved, unitPrice)
	if err := s.store.Save(ctx, b); err != nil {
		if restoreErr := s.catalog.RestoreStock(ctx, productID, reserved); restoreErr != nil {
			slog.ErrorContext(ctx, "restore stock after failed basket save",
				"product_id", productID, "count", reserved, "error", restoreErr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "added to basket", "product_id", productID, "count", reserved)
	return b, nil
}

// Remove takes up to count units out of the basket and returns them to stock.
func (s *Service) Remove(ctx context.Context, sessionID string, productID int64, count int) (*Basket, error) {
	if count <= 0 {
		return nil, ErrInvalidQuantity
	}

	b, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	removed := b.Remove(productID, count)
	if removed == 0 {
		return b, nil
	}

	restored := true
	if err := s.catalog.RestoreStock(ctx, productID, removed); err != nil {
		if !errors.Is(err, database.ErrProductNotFound) {
			return nil, fmt.Errorf("restore stock: %w", err)
		}
		slog.WarnContext(ctx, "removed basket entry for missing product", "product_id", productID)
		restored = false
	}

	if err := s.store.Save(ctx, b); err != nil {
		if restored {
			s.reserveBack(ctx, productID, removed)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "removed from basket", "product_id", productID, "count", removed)
	return b, nil
}

// reserveBack takes restored units out of stock again when the basket that
// still holds them could not be saved.
func (s *Service) reserveBack(ctx context.Context, productID int64, count int) {
	reserved, err := s.catalog.ReserveStock(ctx, productID, count)
	if err != nil || reserved < count {
		slog.ErrorContext(ctx, "reserve stock after failed basket save",
			"product_id", productID, "count", count, "reserved", reserved, "error", err)
	}
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}
