package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront/internal/models"
)

type fakeEmail struct {
	calls int32
	fail  bool
	html  string
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, html string) error {
	atomic.AddInt32(&f.calls, 1)
	f.html = html
	if f.fail {
		return errors.New("smtp relay down")
	}
	return nil
}

type fakeWhatsApp struct {
	calls int32
	fail  bool
	body  string
}

func (f *fakeWhatsApp) Send(ctx context.Context, to, body string) error {
	atomic.AddInt32(&f.calls, 1)
	f.body = body
	if f.fail {
		return errors.New("messaging API timeout")
	}
	return nil
}

func confirmedEvent() *models.OrderConfirmedEvent {
	return &models.OrderConfirmedEvent{
		OrderID:        42,
		IdempotencyKey: "order_abc123",
		CustomerName:   "Asha Rao",
		CustomerPhone:  "+919800000001",
		CustomerEmail:  "asha@example.com",
		TotalAmount:    54300,
		Items: []models.OrderItemData{
			{ProductID: "sku-tee-01", Quantity: 3, UnitPrice: 18100},
		},
	}
}

func TestNotifyOrderConfirmedBothChannels(t *testing.T) {
	email := &fakeEmail{}
	wa := &fakeWhatsApp{}
	d := NewDispatcher(email, wa)

	d.NotifyOrderConfirmed(context.Background(), confirmedEvent(),
		&Shipment{AWBCode: "AWB0012345", CourierName: "Delhivery"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&email.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&wa.calls))
	assert.Contains(t, email.html, "order_abc123")
	assert.Contains(t, email.html, "AWB0012345")
	assert.Contains(t, wa.body, "Delhivery")
}

func TestNotifyOrderConfirmedOneChannelFailing(t *testing.T) {
	email := &fakeEmail{fail: true}
	wa := &fakeWhatsApp{}
	d := NewDispatcher(email, wa)

	// must not panic or skip the healthy channel
	d.NotifyOrderConfirmed(context.Background(), confirmedEvent(), nil)

	assert.Equal(t, int32(1), atomic.LoadInt32(&email.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&wa.calls))
}

func TestNotifyOrderConfirmedSkipsMissingEmail(t *testing.T) {
	email := &fakeEmail{}
	wa := &fakeWhatsApp{}
	d := NewDispatcher(email, wa)

	event := confirmedEvent()
	event.CustomerEmail = ""

	d.NotifyOrderConfirmed(context.Background(), event, nil)

	assert.Equal(t, int32(0), atomic.LoadInt32(&email.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&wa.calls))
}
