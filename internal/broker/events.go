package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"storefront/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderConfirmed publishes an OrderConfirmed event. Keyed by the
// idempotency key so retries of the same order land on one partition.
func (ep *EventPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.IdempotencyKey, event)
}

// PublishShipmentBooked publishes a ShipmentBooked event
func (ep *EventPublisher) PublishShipmentBooked(ctx context.Context, event *models.ShipmentBookedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// EventHandler routes consumed messages to registered handlers
type EventHandler struct {
	onOrderConfirmed func(context.Context, *models.OrderConfirmedEvent) error
	onShipmentBooked func(context.Context, *models.ShipmentBookedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderConfirmed registers a handler for OrderConfirmed events
func (eh *EventHandler) OnOrderConfirmed(handler func(context.Context, *models.OrderConfirmedEvent) error) {
	eh.onOrderConfirmed = handler
}

// OnShipmentBooked registers a handler for ShipmentBooked events
func (eh *EventHandler) OnShipmentBooked(handler func(context.Context, *models.ShipmentBookedEvent) error) {
	eh.onShipmentBooked = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderConfirmed:
		if eh.onOrderConfirmed != nil {
			var event models.OrderConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderConfirmed event: %w", err)
			}
			return eh.onOrderConfirmed(ctx, &event)
		}

	case models.EventTypeShipmentBooked:
		if eh.onShipmentBooked != nil {
			var event models.ShipmentBookedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ShipmentBooked event: %w", err)
			}
			return eh.onShipmentBooked(ctx, &event)
		}
	}

	return nil
}
