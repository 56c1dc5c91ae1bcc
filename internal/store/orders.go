package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"
)

// CreateOrder inserts the order and its items in one transaction. The unique
// index on idempotency_key is the race closer: a concurrent insert with the
// same key fails with a unique violation, surfaced as ErrDuplicateKey.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (idempotency_key, customer_name, customer_phone, customer_email,
			shipping_address, total_amount, status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.IdempotencyKey, order.CustomerName, order.CustomerPhone, order.CustomerEmail,
		order.ShippingAddress, order.TotalAmount, order.Status, order.PaymentMethod,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, itemQuery,
			order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice, items[i].Size)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by internal ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key.
// Returns (nil, nil) when no row exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus moves an order to a new status. The WHERE clause repeats
// the expected current status so a stale caller cannot move the order
// backwards; zero rows affected means the transition was not applied.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOrderShipment records the carrier booking result and marks the order
// shipped. Only PAID or PENDING (COD) orders are eligible.
func (s *Store) SetOrderShipment(ctx context.Context, orderID int64, carrierOrderID, awbCode, courierName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET carrier_order_id = $1, awb_code = $2, courier_name = $3,
			status = $4, updated_at = NOW()
		WHERE id = $5 AND status IN ($6, $7)`,
		carrierOrderID, awbCode, courierName,
		models.OrderStatusShipped, orderID,
		models.OrderStatusPaid, models.OrderStatusPending)
	return err
}

// GetOrdersAwaitingShipment lists paid orders with no carrier booking yet.
// The out-of-band shipment retry job feeds from this.
func (s *Store) GetOrdersAwaitingShipment(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = $1 AND awb_code IS NULL
		ORDER BY created_at
		LIMIT $2`,
		models.OrderStatusPaid, limit)
	return orders, err
}
