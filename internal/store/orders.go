package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type CreateOrderRequest struct {
	BuyerID int64
	Lines   []OrderLineRequest
}

// OrderLineRequest carries the price the buyer saw, which becomes the line's
// price_in_order.
type OrderLineRequest struct {
	ProductID int64
	Count     int
	Price     decimal.Decimal
}

const orderColumns = `id, buyer_id, delivery_type, payment_type, total_cost, status, city, address, created_at, updated_at, paid_at`

func scanOrder(row rowScanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.DeliveryType,
		&order.PaymentType,
		&order.TotalCost,
		&order.Status,
		&order.City,
		&order.Address,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.PaidAt,
	)
}

// CreateOrder writes the order header and its product lines in one transaction.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("create order: no lines")
	}

	items := make([]pricing.Item, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, pricing.Item{ProductID: line.ProductID, Quantity: line.Count, UnitPrice: line.Price})
	}
	totalCost := pricing.OrderTotal(items)

	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var orderID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (buyer_id, total_cost, status, created_at, updated_at)
			 VALUES ($1, $2, $3, NOW(), NOW())
			 RETURNING id`,
			req.BuyerID, totalCost, models.OrderStatusCreated).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range req.Lines {
			if err := insertLine(ctx, tx, orderID, models.LineKindProduct, line.ProductID, line.Count, line.Price); err != nil {
				return err
			}
		}

		order, err = getOrder(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("fetch created order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func insertLine(ctx context.Context, tx *sql.Tx, orderID int64, kind models.LineKind, productID int64, count int, price decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_lines (order_id, product_id, kind, count_in_order, price_in_order, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		orderID, productID, kind, count, price)
	if err != nil {
		return fmt.Errorf("create order line: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	return getOrder(ctx, db, id)
}

func getOrder(ctx context.Context, q querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := getOrderLines(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

// getOrderLines lists product lines by id, then the delivery line.
func getOrderLines(ctx context.Context, q querier, orderID int64) ([]models.OrderLine, error) {
	query := `
		SELECT l.id, l.order_id, l.product_id, l.kind, p.title, l.count_in_order, l.price_in_order,
		       p.free_delivery, l.created_at
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.order_id = $1
		ORDER BY l.kind = 'delivery', l.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Kind,
			&line.Title,
			&line.CountInOrder,
			&line.PriceInOrder,
			&line.FreeDelivery,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// lockOrder loads the buyer's order and holds its row lock until the
// transaction ends.
func lockOrder(ctx context.Context, tx *sql.Tx, orderID, buyerID int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND buyer_id = $2 FOR UPDATE`

	if err := scanOrder(tx.QueryRowContext(ctx, query, orderID, buyerID), order); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	lines, err := getOrderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

type ConfirmOrderRequest struct {
	OrderID      int64
	BuyerID      int64
	DeliveryType models.DeliveryType
	PaymentType  models.PaymentType
	City         string
	Address      string
	// DeliveryLine computes the delivery line from the order's current lines.
	DeliveryLine func(lines []models.OrderLine) (models.OrderLine, error)
}

// ConfirmOrder moves an order to accepted. Any previous delivery line is
// replaced, so confirming twice leaves exactly one delivery line, and
// total_cost is recomputed from the lines.
func ConfirmOrder(ctx context.Context, db *sql.DB, req ConfirmOrderRequest) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, req.OrderID, req.BuyerID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return database.ErrOrderPaid
		}

		delivery, err := req.DeliveryLine(current.Lines)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM order_lines WHERE order_id = $1 AND kind = $2`,
			req.OrderID, models.LineKindDelivery)
		if err != nil {
			return fmt.Errorf("delete delivery line: %w", err)
		}

		if err := insertLine(ctx, tx, req.OrderID, models.LineKindDelivery, delivery.ProductID, delivery.CountInOrder, delivery.PriceInOrder); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET delivery_type = $1,
			     payment_type = $2,
			     city = $3,
			     address = $4,
			     status = $5,
			     total_cost = (SELECT SUM(price_in_order * count_in_order) FROM order_lines WHERE order_id = $6),
			     updated_at = NOW()
			 WHERE id = $6`,
			req.DeliveryType, req.PaymentType, req.City, req.Address, models.OrderStatusAccepted, req.OrderID)
		if err != nil {
			return fmt.Errorf("accept order: %w", err)
		}

		order, err = getOrder(ctx, tx, req.OrderID)
		if err != nil {
			return fmt.Errorf("fetch accepted order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

type MarkPaidRequest struct {
	OrderID int64
	BuyerID int64
	// Event builds the notification written to the outbox with the transition.
	Event func(order *models.Order) (OutboxMessage, error)
}

// MarkPaid flips an order to paid and records its notification in the same
// transaction. For an order that is already paid it changes nothing and
// reports transitioned == false.
func MarkPaid(ctx context.Context, db *sql.DB, req MarkPaidRequest) (order *models.Order, transitioned bool, err error) {
	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		transitioned = false

		current, err := lockOrder(ctx, tx, req.OrderID, req.BuyerID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			order = current
			return nil
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, paid_at = NOW(), updated_at = NOW()
			 WHERE id = $2 AND status <> $1`,
			models.OrderStatusPaid, req.OrderID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			order = current
			return nil
		}

		order, err = getOrder(ctx, tx, req.OrderID)
		if err != nil {
			return fmt.Errorf("fetch paid order: %w", err)
		}

		if req.Event != nil {
			msg, err := req.Event(order)
			if err != nil {
				return err
			}
			if err := InsertOutbox(ctx, tx, msg); err != nil {
				return err
			}
		}

		transitioned = true
		return nil
	})

	if err != nil {
		return nil, false, err
	}

	return order, transitioned, nil
}

// ListOrdersCursor pages through a buyer's orders, newest first.
func ListOrdersCursor(ctx context.Context, db *sql.DB, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
