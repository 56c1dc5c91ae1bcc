package models

import (
	"database/sql"
	"time"
)

// Order represents a customer order. The idempotency key is the payment
// gateway's order id and is unique across all rows.
type Order struct {
	ID              int64          `db:"id" json:"id"`
	IdempotencyKey  string         `db:"idempotency_key" json:"idempotency_key"`
	CustomerName    string         `db:"customer_name" json:"customer_name"`
	CustomerPhone   string         `db:"customer_phone" json:"customer_phone"`
	CustomerEmail   sql.NullString `db:"customer_email" json:"customer_email,omitempty"`
	ShippingAddress string         `db:"shipping_address" json:"shipping_address"`
	TotalAmount     int64          `db:"total_amount" json:"total_amount"`
	Status          string         `db:"status" json:"status"`
	PaymentMethod   string         `db:"payment_method" json:"payment_method"`
	CarrierOrderID  sql.NullString `db:"carrier_order_id" json:"carrier_order_id,omitempty"`
	AWBCode         sql.NullString `db:"awb_code" json:"awb_code,omitempty"`
	CourierName     sql.NullString `db:"courier_name" json:"courier_name,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	ID        int64          `db:"id" json:"id"`
	OrderID   int64          `db:"order_id" json:"order_id"`
	ProductID string         `db:"product_id" json:"product_id"`
	Quantity  int            `db:"quantity" json:"quantity"`
	UnitPrice int64          `db:"unit_price" json:"unit_price"`
	Size      sql.NullString `db:"size" json:"size,omitempty"`
}

// WalletLedgerEntry records one admin balance credit. OrderID doubles as the
// idempotency key: at most one entry exists per order id.
type WalletLedgerEntry struct {
	OrderID    string    `db:"order_id" json:"order_id"`
	AdminID    string    `db:"admin_id" json:"admin_id"`
	Amount     int64     `db:"amount" json:"amount"`
	CreditedAt time.Time `db:"credited_at" json:"credited_at"`
}

// AdminWallet is the running balance a ledger entry credits into
type AdminWallet struct {
	AdminID   string    `db:"admin_id" json:"admin_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// Payment methods
const (
	PaymentMethodOnline = "ONLINE"
	PaymentMethodCOD    = "COD"
)

var statusRank = map[string]int{
	OrderStatusPending:   0,
	OrderStatusPaid:      1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// CanTransition reports whether an order may move from one status to
// another. Transitions are monotonic along PENDING, PAID, SHIPPED,
// DELIVERED; CANCELLED is reachable from PENDING or PAID only.
func CanTransition(from, to string) bool {
	if to == OrderStatusCancelled {
		return from == OrderStatusPending || from == OrderStatusPaid
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// InitialStatus derives the creation status from the payment method
func InitialStatus(paymentMethod string) string {
	if paymentMethod == PaymentMethodOnline {
		return OrderStatusPaid
	}
	return OrderStatusPending
}
