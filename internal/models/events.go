package models

import (
	"fmt"
	"time"
)

// WebhookEventType is the closed set of payment-gateway webhook types. The
// parser rejects anything outside the set so new types are an explicit
// decision rather than a silently-ignored default branch.
type WebhookEventType int

const (
	WebhookPaymentSuccess WebhookEventType = iota
	WebhookPaymentFailed
	WebhookPaymentUserDropped
)

func (t WebhookEventType) String() string {
	switch t {
	case WebhookPaymentSuccess:
		return "PAYMENT_SUCCESS_WEBHOOK"
	case WebhookPaymentFailed:
		return "PAYMENT_FAILED_WEBHOOK"
	case WebhookPaymentUserDropped:
		return "PAYMENT_USER_DROPPED_WEBHOOK"
	}
	return "UNKNOWN"
}

// ParseWebhookEventType maps the gateway's type string onto the enum
func ParseWebhookEventType(s string) (WebhookEventType, error) {
	switch s {
	case "PAYMENT_SUCCESS_WEBHOOK":
		return WebhookPaymentSuccess, nil
	case "PAYMENT_FAILED_WEBHOOK":
		return WebhookPaymentFailed, nil
	case "PAYMENT_USER_DROPPED_WEBHOOK":
		return WebhookPaymentUserDropped, nil
	}
	return 0, fmt.Errorf("unknown webhook event type: %q", s)
}

// PaymentWebhook is the gateway webhook envelope
type PaymentWebhook struct {
	Type string             `json:"type"`
	Data PaymentWebhookData `json:"data"`
}

type PaymentWebhookData struct {
	Order   WebhookOrder   `json:"order"`
	Payment WebhookPayment `json:"payment"`
}

// WebhookOrder carries the gateway order id and the order tags the checkout
// session was created with. The tags round-trip the cart payload so the
// webhook path can build the order without a client call.
type WebhookOrder struct {
	OrderID   string            `json:"order_id"`
	OrderTags map[string]string `json:"order_tags,omitempty"`
}

type WebhookPayment struct {
	PaymentID string `json:"payment_id"`
}

// Kafka event types
const (
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeShipmentBooked = "SHIPMENT_BOOKED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent is published after the order row is durably committed.
// The shipment and notification workers consume it independently.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     int64           `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	Items           []OrderItemData `json:"items"`
}

// ShipmentBookedEvent is published after a successful carrier booking
type ShipmentBookedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	CarrierOrderID string `json:"carrier_order_id"`
	AWBCode        string `json:"awb_code"`
	CourierName    string `json:"courier_name"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Size      string `json:"size,omitempty"`
}
