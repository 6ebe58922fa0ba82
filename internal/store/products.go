package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, title, description, price, count, free_delivery, reserved, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Title,
		&product.Description,
		&product.Price,
		&product.Count,
		&product.FreeDelivery,
		&product.Reserved,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
}

type CreateProductRequest struct {
	SKU          string
	Title        string
	Description  string
	Price        decimal.Decimal
	Count        int
	FreeDelivery bool
	Reserved     bool
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, title, description, price, count, free_delivery, reserved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + productColumns

	row := db.QueryRowContext(ctx, query,
		req.SKU, req.Title, req.Description, req.Price, req.Count, req.FreeDelivery, req.Reserved)
	if err := scanProduct(row, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(db.QueryRowContext(ctx, query, id), product); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func GetProductBySKU(ctx context.Context, db *sql.DB, sku string) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	if err := scanProduct(db.QueryRowContext(ctx, query, sku), product); err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("%w: sku %s", database.ErrProductNotFound, sku)
		}
		return nil, fmt.Errorf("get product by sku: %w", err)
	}

	return product, nil
}

// GetProductsByIDs returns the products that exist, keyed by id. Unknown ids are
// simply absent from the result.
func GetProductsByIDs(ctx context.Context, db *sql.DB, ids []int64) (map[int64]models.Product, error) {
	products := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	rows, err := db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// ReserveStock takes up to quantity units from the product's stock and returns
// the number taken, which is zero when the product is sold out.
func ReserveStock(ctx context.Context, db *sql.DB, productID int64, quantity int) (int, error) {
	var reserved int

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT count FROM products WHERE id = $1 FOR UPDATE`,
			productID).Scan(&stock)
		if err != nil {
			if database.IsNoRows(err) {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		reserved = min(stock, quantity)
		if reserved == 0 {
			return nil
		}

		return DecrementStock(ctx, tx, productID, reserved)
	})
	if err != nil {
		return 0, err
	}

	return reserved, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET count = count - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND count >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func RestoreStock(ctx context.Context, db *sql.DB, productID int64, quantity int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET count = count + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func UpdatePrice(ctx context.Context, db *sql.DB, productID int64, price decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET price = $1, updated_at = NOW() WHERE id = $2`,
		price, productID)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// UpsertDiscount stores the single discount a product may have, replacing any
// previous one.
func UpsertDiscount(ctx context.Context, db *sql.DB, discount models.Discount) (*models.Discount, error) {
	if err := pricing.ValidateDiscount(discount); err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrInvalidDiscount, err)
	}

	out := &models.Discount{}
	err := db.QueryRowContext(ctx,
		`INSERT INTO discounts (product_id, sale_price, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_id) DO UPDATE
		 SET sale_price = EXCLUDED.sale_price,
		     valid_from = EXCLUDED.valid_from,
		     valid_to = EXCLUDED.valid_to
		 RETURNING id, product_id, sale_price, valid_from, valid_to`,
		discount.ProductID, discount.SalePrice, discount.ValidFrom, discount.ValidTo,
	).Scan(&out.ID, &out.ProductID, &out.SalePrice, &out.ValidFrom, &out.ValidTo)
	if err != nil {
		return nil, fmt.Errorf("upsert discount: %w", err)
	}

	return out, nil
}

// ActiveDiscount returns nil when the product has no discount in effect at now.
func ActiveDiscount(ctx context.Context, db *sql.DB, productID int64, now time.Time) (*models.Discount, error) {
	d := &models.Discount{}

	err := db.QueryRowContext(ctx,
		`SELECT id, product_id, sale_price, valid_from, valid_to
		 FROM discounts
		 WHERE product_id = $1
		   AND valid_from <= $2
		   AND valid_to >= $2`,
		productID, now).Scan(&d.ID, &d.ProductID, &d.SalePrice, &d.ValidFrom, &d.ValidTo)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}

	return d, nil
}

func SetSpecification(ctx context.Context, db *sql.DB, productID int64, name, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO product_specifications (product_id, name, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, name) DO UPDATE SET value = EXCLUDED.value`,
		productID, name, value)
	if err != nil {
		return fmt.Errorf("set specification: %w", err)
	}
	return nil
}

func GetSpecification(ctx context.Context, db *sql.DB, productID int64, name string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM product_specifications WHERE product_id = $1 AND name = $2`,
		productID, name).Scan(&value)
	if err != nil {
		if database.IsNoRows(err) {
			return "", fmt.Errorf("specification %q of product %d: %w", name, productID, sql.ErrNoRows)
		}
		return "", fmt.Errorf("get specification: %w", err)
	}
	return value, nil
}

// DeliveryRates reads delivery pricing from the reserved catalog entries.
func DeliveryRates(ctx context.Context, db *sql.DB) (pricing.Rates, error) {
	var rates pricing.Rates

	for sku, dst := range map[string]*models.Product{
		models.SKUDeliveryFree:     &rates.Free,
		models.SKUDeliveryOrdinary: &rates.Ordinary,
		models.SKUDeliveryExpress:  &rates.Express,
	} {
		product, err := GetProductBySKU(ctx, db, sku)
		if err != nil {
			return pricing.Rates{}, fmt.Errorf("delivery rates: %w", err)
		}
		*dst = *product
	}

	raw, err := GetSpecification(ctx, db, rates.Ordinary.ID, models.SpecFreeThreshold)
	if err != nil {
		return pricing.Rates{}, fmt.Errorf("delivery rates: %w", err)
	}

	threshold, err := decimal.NewFromString(raw)
	if err != nil {
		return pricing.Rates{}, fmt.Errorf("parse free delivery threshold %q: %w", raw, err)
	}
	rates.Threshold = threshold

	return rates, nil
}
