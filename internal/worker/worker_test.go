package worker

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/shipping"
)

type memShipmentStore struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
}

func newMemShipmentStore(orders ...*models.Order) *memShipmentStore {
	s := &memShipmentStore{
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
		s.items[o.ID] = []models.OrderItem{
			{OrderID: o.ID, ProductID: "sku-tee-01", Quantity: 3, UnitPrice: 18100},
		}
	}
	return s
}

func (m *memShipmentStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	copied := *order
	return &copied, nil
}

func (m *memShipmentStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memShipmentStore) SetOrderShipment(ctx context.Context, orderID int64, carrierOrderID, awbCode, courierName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.orders[orderID]
	order.CarrierOrderID = sql.NullString{String: carrierOrderID, Valid: true}
	order.AWBCode = sql.NullString{String: awbCode, Valid: true}
	order.CourierName = sql.NullString{String: courierName, Valid: true}
	order.Status = models.OrderStatusShipped
	return nil
}

func (m *memShipmentStore) GetOrdersAwaitingShipment(ctx context.Context, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderStatusPaid && !o.AWBCode.Valid {
			out = append(out, *o)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeCarrier struct {
	mu      sync.Mutex
	fail    bool
	booked  int
	pickups int
}

func (f *fakeCarrier) CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (*shipping.ShipmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, &shipping.Failure{Op: "create_shipment", StatusCode: http.StatusInternalServerError}
	}
	f.booked++
	return &shipping.ShipmentResult{
		CarrierOrderID: "774411",
		ShipmentID:     "556677",
		AWBCode:        "AWB0012345",
		CourierName:    "Delhivery",
	}, nil
}

func (f *fakeCarrier) RequestPickup(ctx context.Context, shipmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pickups++
	return nil
}

func paidOrder(id int64) *models.Order {
	return &models.Order{
		ID:              id,
		IdempotencyKey:  fmt.Sprintf("order_%d", id),
		CustomerName:    "Asha Rao",
		CustomerPhone:   "+919800000001",
		ShippingAddress: "12 MG Road, Bengaluru 560001",
		TotalAmount:     54300,
		Status:          models.OrderStatusPaid,
		PaymentMethod:   models.PaymentMethodOnline,
	}
}

func TestHandleOrderConfirmedBooksShipment(t *testing.T) {
	store := newMemShipmentStore(paidOrder(1))
	carrier := &fakeCarrier{}
	w := NewShipmentWorker(nil, store, carrier, nil)

	err := w.HandleOrderConfirmed(context.Background(), &models.OrderConfirmedEvent{OrderID: 1})
	require.NoError(t, err)

	order, _ := store.GetOrderByID(context.Background(), 1)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, "AWB0012345", order.AWBCode.String)
	assert.Equal(t, "Delhivery", order.CourierName.String)
	assert.Equal(t, 1, carrier.pickups)
}

func TestHandleOrderConfirmedCarrierDownDegradesGracefully(t *testing.T) {
	store := newMemShipmentStore(paidOrder(1))
	carrier := &fakeCarrier{fail: true}
	w := NewShipmentWorker(nil, store, carrier, nil)

	// no error surfaces, the order stays paid with no AWB
	err := w.HandleOrderConfirmed(context.Background(), &models.OrderConfirmedEvent{OrderID: 1})
	require.NoError(t, err)

	order, _ := store.GetOrderByID(context.Background(), 1)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.False(t, order.AWBCode.Valid)
}

func TestHandleOrderConfirmedSkipsAlreadyBooked(t *testing.T) {
	order := paidOrder(1)
	order.AWBCode = sql.NullString{String: "AWB999", Valid: true}
	store := newMemShipmentStore(order)
	carrier := &fakeCarrier{}
	w := NewShipmentWorker(nil, store, carrier, nil)

	// kafka redelivered the event after a successful booking
	err := w.HandleOrderConfirmed(context.Background(), &models.OrderConfirmedEvent{OrderID: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, carrier.booked)
}

func TestRetryPendingBooksFailedOrders(t *testing.T) {
	store := newMemShipmentStore(paidOrder(1), paidOrder(2))
	carrier := &fakeCarrier{fail: true}
	w := NewShipmentWorker(nil, store, carrier, nil)

	ctx := context.Background()

	require.NoError(t, w.HandleOrderConfirmed(ctx, &models.OrderConfirmedEvent{OrderID: 1}))
	require.NoError(t, w.HandleOrderConfirmed(ctx, &models.OrderConfirmedEvent{OrderID: 2}))

	// carrier recovers, the retry job sweeps the backlog
	carrier.fail = false
	require.NoError(t, w.RetryPending(ctx, 10))

	for _, id := range []int64{1, 2} {
		order, _ := store.GetOrderByID(ctx, id)
		assert.Equal(t, models.OrderStatusShipped, order.Status, "order %d", id)
		assert.True(t, order.AWBCode.Valid)
	}
	assert.Equal(t, 2, carrier.booked)
}
