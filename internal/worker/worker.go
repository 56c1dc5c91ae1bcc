package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/shipping"
	"storefront/internal/util"
)

// ShipmentStore is the slice of the store the shipment worker needs
type ShipmentStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetOrderShipment(ctx context.Context, orderID int64, carrierOrderID, awbCode, courierName string) error
	GetOrdersAwaitingShipment(ctx context.Context, limit int) ([]models.Order, error)
}

// ShipmentBooker books shipments with the carrier
type ShipmentBooker interface {
	CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (*shipping.ShipmentResult, error)
	RequestPickup(ctx context.Context, shipmentID string) error
}

// BookingPublisher announces successful bookings
type BookingPublisher interface {
	PublishShipmentBooked(ctx context.Context, event *models.ShipmentBookedEvent) error
}

// ShipmentWorker consumes OrderConfirmed events and books carrier shipments.
// Booking is best effort: a carrier failure leaves the order in its paid
// state for the out-of-band retry job, it never bubbles up.
type ShipmentWorker struct {
	consumer  *broker.Consumer
	handler   *broker.EventHandler
	store     ShipmentStore
	carrier   ShipmentBooker
	publisher BookingPublisher
	logger    *zap.Logger
}

func NewShipmentWorker(
	consumer *broker.Consumer,
	shipmentStore ShipmentStore,
	carrier ShipmentBooker,
	publisher BookingPublisher,
) *ShipmentWorker {
	w := &ShipmentWorker{
		consumer:  consumer,
		store:     shipmentStore,
		carrier:   carrier,
		publisher: publisher,
		logger:    util.GetLogger(),
	}

	handler := broker.NewEventHandler()
	handler.OnOrderConfirmed(w.HandleOrderConfirmed)
	w.handler = handler
	return w
}

// Start starts the worker
func (w *ShipmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting shipment worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *ShipmentWorker) Stop() error {
	w.logger.Info("Stopping shipment worker")
	return w.consumer.Close()
}

// HandleOrderConfirmed books a shipment for a freshly confirmed order.
// Always returns nil: the event stream is at-least-once, and a failed
// booking is recovered by RetryPending rather than by redelivery storms.
func (w *ShipmentWorker) HandleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		w.logger.Error("Order vanished before shipment booking",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		return nil
	}

	// redelivered event for an order that is already booked
	if order.AWBCode.Valid && order.AWBCode.String != "" {
		return nil
	}

	w.bookShipment(ctx, order)
	return nil
}

func (w *ShipmentWorker) bookShipment(ctx context.Context, order *models.Order) {
	items, err := w.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		w.logger.Error("Failed to load order items for booking",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}

	result, err := w.carrier.CreateShipment(ctx, order, items)
	if err != nil {
		// order stays PAID with no AWB; picked up by the retry job
		w.logger.Warn("Shipment booking failed, order left awaiting shipment",
			zap.Int64("order_id", order.ID),
			zap.String("idempotency_key", order.IdempotencyKey),
			zap.Error(err))
		return
	}

	if err := w.store.SetOrderShipment(ctx, order.ID, result.CarrierOrderID, result.AWBCode, result.CourierName); err != nil {
		w.logger.Error("Failed to record shipment on order",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}

	util.ShipmentsBookedTotal.Inc()
	w.logger.Info("Shipment booked",
		zap.Int64("order_id", order.ID),
		zap.String("awb_code", result.AWBCode),
		zap.String("courier", result.CourierName))

	if err := w.carrier.RequestPickup(ctx, result.ShipmentID); err != nil {
		w.logger.Warn("Pickup request failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	if w.publisher != nil {
		event := &models.ShipmentBookedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeShipmentBooked,
				Timestamp: time.Now(),
			},
			OrderID:        order.ID,
			CarrierOrderID: result.CarrierOrderID,
			AWBCode:        result.AWBCode,
			CourierName:    result.CourierName,
		}
		if err := w.publisher.PublishShipmentBooked(ctx, event); err != nil {
			w.logger.Warn("Failed to publish ShipmentBooked event", zap.Error(err))
		}
	}
}

// RetryPending re-attempts booking for paid orders with no AWB. Meant to be
// called from a scheduled job.
func (w *ShipmentWorker) RetryPending(ctx context.Context, limit int) error {
	orders, err := w.store.GetOrdersAwaitingShipment(ctx, limit)
	if err != nil {
		return err
	}

	for i := range orders {
		w.bookShipment(ctx, &orders[i])
	}
	return nil
}

// NotificationWorker consumes OrderConfirmed events and fans out customer
// notifications on its own consumer group, independent of shipment booking.
type NotificationWorker struct {
	consumer   *broker.Consumer
	handler    *broker.EventHandler
	store      ShipmentStore
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

func NewNotificationWorker(
	consumer *broker.Consumer,
	shipmentStore ShipmentStore,
	dispatcher *notify.Dispatcher,
) *NotificationWorker {
	w := &NotificationWorker{
		consumer:   consumer,
		store:      shipmentStore,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}

	handler := broker.NewEventHandler()
	handler.OnOrderConfirmed(w.HandleOrderConfirmed)
	w.handler = handler
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// HandleOrderConfirmed sends the confirmation messages. Tracking info is
// included when the shipment worker already booked by the time we run.
func (w *NotificationWorker) HandleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	var shipment *notify.Shipment
	if order, err := w.store.GetOrderByID(ctx, event.OrderID); err == nil {
		if order.AWBCode.Valid && order.AWBCode.String != "" {
			shipment = &notify.Shipment{
				AWBCode:     order.AWBCode.String,
				CourierName: order.CourierName.String,
			}
		}
	}

	w.dispatcher.NotifyOrderConfirmed(ctx, event, shipment)
	return nil
}
