package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/safar/shop-checkout/internal/config"
	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/logging"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/store"
	"github.com/shopspring/decimal"
)

const migrationDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: go run scripts/run_migrations.go [up|down|seed]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch direction := os.Args[1]; direction {
	case "up", "down":
		err = migrate(ctx, db, direction, logger)
	case "seed":
		err = seed(ctx, db, logger)
	default:
		err = fmt.Errorf("unknown command %q, want up, down or seed", direction)
	}
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// migrate applies every *.up.sql in name order, or every *.down.sql in
// reverse order. Each file runs in its own transaction.
func migrate(ctx context.Context, db *sql.DB, direction string, logger *slog.Logger) error {
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	suffix := "." + direction + ".sql"
	var names []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), suffix) {
			names = append(names, file.Name())
		}
	}

	sort.Strings(names)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(migrationDir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		logger.Info("running migration", "file", name)
		err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, string(content))
			return err
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	logger.Info("migrations complete", "count", len(names), "direction", direction)
	return nil
}

type demoProduct struct {
	sku          string
	title        string
	price        string
	count        int
	freeDelivery bool
	salePrice    string
	brand        string
}

var demoProducts = []demoProduct{
	{sku: "PHONE-001", title: "Phone", price: "1500.00", count: 20, brand: "Acme"},
	{sku: "CASE-001", title: "Phone case", price: "250.00", count: 100, brand: "Acme", salePrice: "199.00"},
	{sku: "CABLE-001", title: "USB cable", price: "90.00", count: 300, freeDelivery: true, brand: "Wirely"},
}

// seed fills an empty catalog with a few products so checkout can be tried
// locally. Products that already exist are left untouched.
func seed(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	now := time.Now()

	for _, p := range demoProducts {
		if _, err := store.GetProductBySKU(ctx, db, p.sku); err == nil {
			logger.Info("product exists", "sku", p.sku)
			continue
		} else if !errors.Is(err, database.ErrProductNotFound) {
			return err
		}

		product, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
			SKU:          p.sku,
			Title:        p.title,
			Price:        decimal.RequireFromString(p.price),
			Count:        p.count,
			FreeDelivery: p.freeDelivery,
		})
		if err != nil {
			return err
		}

		if err := store.SetSpecification(ctx, db, product.ID, "brand", p.brand); err != nil {
			return err
		}

		if p.salePrice != "" {
			_, err := store.UpsertDiscount(ctx, db, models.Discount{
				ProductID: product.ID,
				SalePrice: decimal.RequireFromString(p.salePrice),
				ValidFrom: now,
				ValidTo:   now.AddDate(0, 1, 0),
			})
			if err != nil {
				return err
			}
		}

		logger.Info("product created", "sku", p.sku, "id", product.ID)
	}

	return nil
}
