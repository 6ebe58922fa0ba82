package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/models"
)

// EnsureBuyer returns the buyer with the given email, creating it on first use.
// A non-empty name overwrites the stored one.
func EnsureBuyer(ctx context.Context, db *sql.DB, email, name string) (*models.Buyer, error) {
	buyer := &models.Buyer{}

	query := `
		INSERT INTO buyers (email, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name = '' THEN buyers.name ELSE EXCLUDED.name END,
		    updated_at = NOW()
		RETURNING id, email, name, phone, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, email, name).Scan(
		&buyer.ID,
		&buyer.Email,
		&buyer.Name,
		&buyer.Phone,
		&buyer.CreatedAt,
		&buyer.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure buyer: %w", err)
	}

	return buyer, nil
}

func GetBuyer(ctx context.Context, db *sql.DB, id int64) (*models.Buyer, error) {
	buyer := &models.Buyer{}

	query := `
		SELECT id, email, name, phone, created_at, updated_at
		FROM buyers
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&buyer.ID,
		&buyer.Email,
		&buyer.Name,
		&buyer.Phone,
		&buyer.CreatedAt,
		&buyer.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrBuyerNotFound
		}
		return nil, fmt.Errorf("get buyer: %w", err)
	}

	return buyer, nil
}
