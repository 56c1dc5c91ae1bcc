package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront/internal/models"
	"storefront/internal/util"
)

// channelTimeout bounds each send so a slow transport cannot hold the
// dispatch past the webhook providers' retry SLA.
const channelTimeout = 10 * time.Second

// Shipment is the optional tracking info included in customer messages
type Shipment struct {
	AWBCode     string
	CourierName string
}

// Dispatcher fans an order confirmation out to email and WhatsApp. Channels
// are independent: either one failing is logged and counted, never returned.
type Dispatcher struct {
	email    EmailTransport
	whatsapp MessageTransport
	logger   *zap.Logger
}

func NewDispatcher(email EmailTransport, whatsapp MessageTransport) *Dispatcher {
	return &Dispatcher{
		email:    email,
		whatsapp: whatsapp,
		logger:   util.GetLogger(),
	}
}

// NotifyOrderConfirmed sends the confirmation to both channels and waits for
// both to finish. It never returns an error; per-channel failures stay local.
func (d *Dispatcher) NotifyOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent, shipment *Shipment) {
	var g errgroup.Group

	if d.email != nil && event.CustomerEmail != "" {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, channelTimeout)
			defer cancel()

			subject := fmt.Sprintf("Order %s confirmed", event.IdempotencyKey)
			err := d.email.Send(sendCtx, event.CustomerEmail, subject, buildEmailHTML(event, shipment))
			if err != nil {
				util.NotificationsFailedTotal.WithLabelValues("email").Inc()
				d.logger.Warn("Email notification failed",
					zap.String("order_key", event.IdempotencyKey),
					zap.Error(err))
				return nil
			}
			util.NotificationsSentTotal.WithLabelValues("email").Inc()
			return nil
		})
	}

	if d.whatsapp != nil && event.CustomerPhone != "" {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, channelTimeout)
			defer cancel()

			err := d.whatsapp.Send(sendCtx, event.CustomerPhone, buildMessageBody(event, shipment))
			if err != nil {
				util.NotificationsFailedTotal.WithLabelValues("whatsapp").Inc()
				d.logger.Warn("WhatsApp notification failed",
					zap.String("order_key", event.IdempotencyKey),
					zap.Error(err))
				return nil
			}
			util.NotificationsSentTotal.WithLabelValues("whatsapp").Inc()
			return nil
		})
	}

	_ = g.Wait()
}

func buildEmailHTML(event *models.OrderConfirmedEvent, shipment *Shipment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Thanks for your order, %s!</h2>", event.CustomerName)
	fmt.Fprintf(&b, "<p>Order <b>%s</b> is confirmed.</p><ul>", event.IdempotencyKey)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "<li>%s × %d — ₹%.2f</li>", item.ProductID, item.Quantity,
			float64(item.UnitPrice*int64(item.Quantity))/100)
	}
	fmt.Fprintf(&b, "</ul><p>Total: ₹%.2f</p>", float64(event.TotalAmount)/100)
	if shipment != nil && shipment.AWBCode != "" {
		fmt.Fprintf(&b, "<p>Shipped via %s, tracking %s.</p>", shipment.CourierName, shipment.AWBCode)
	}
	return b.String()
}

func buildMessageBody(event *models.OrderConfirmedEvent, shipment *Shipment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, your order %s is confirmed. Total ₹%.2f.",
		event.CustomerName, event.IdempotencyKey, float64(event.TotalAmount)/100)
	if shipment != nil && shipment.AWBCode != "" {
		fmt.Fprintf(&b, " Track it with %s: %s.", shipment.CourierName, shipment.AWBCode)
	}
	return b.String()
}
