package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/store"
)

// memStore honors the same contracts as the sqlx store: (nil, nil) on a
// lookup miss and ErrDuplicateKey when an insert loses the unique-key race.
type memStore struct {
	mu      sync.Mutex
	byKey   map[string]*models.Order
	byID    map[int64]*models.Order
	items   map[int64][]models.OrderItem
	nextID  int64
	inserts int
}

func newMemStore() *memStore {
	return &memStore{
		byKey: make(map[string]*models.Order),
		byID:  make(map[int64]*models.Order),
		items: make(map[int64][]models.OrderItem),
	}
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[order.IdempotencyKey]; exists {
		return store.ErrDuplicateKey
	}

	m.nextID++
	m.inserts++
	order.ID = m.nextID

	stored := *order
	m.byKey[order.IdempotencyKey] = &stored
	m.byID[order.ID] = &stored
	m.items[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (m *memStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	copied := *order
	return &copied, nil
}

func (m *memStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byID[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderConfirmedEvent
	fail   bool
}

func (p *fakePublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func confirmRequest() *ConfirmOrderRequest {
	return &ConfirmOrderRequest{
		IdempotencyKey:  "order_abc123",
		CustomerName:    "Asha Rao",
		CustomerPhone:   "+919800000001",
		CustomerEmail:   "asha@example.com",
		ShippingAddress: "12 MG Road, Bengaluru 560001",
		Total:           54300,
		PaymentMethod:   models.PaymentMethodOnline,
		Items: []ConfirmOrderItem{
			{ProductID: "sku-tee-01", Quantity: 3, Price: 18100},
		},
	}
}

func newTestEngine(ms *memStore, pub *fakePublisher) *ReconciliationEngine {
	return NewReconciliationEngine(ms, nil, pub, nil)
}

func TestConfirmOrderCreatesOnce(t *testing.T) {
	ms := newMemStore()
	pub := &fakePublisher{}
	engine := newTestEngine(ms, pub)

	ctx := context.Background()

	order, created, err := engine.ConfirmOrder(ctx, confirmRequest(), SourceWebhook)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "order_abc123", order.IdempotencyKey)

	// same key again, via the other path
	again, created, err := engine.ConfirmOrder(ctx, confirmRequest(), SourceClient)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, again.ID)

	assert.Equal(t, 1, ms.inserts)
	assert.Len(t, pub.events, 1)
}

func TestConfirmOrderCODStartsPending(t *testing.T) {
	engine := newTestEngine(newMemStore(), &fakePublisher{})

	req := confirmRequest()
	req.PaymentMethod = models.PaymentMethodCOD

	order, created, err := engine.ConfirmOrder(context.Background(), req, SourceClient)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestConfirmOrderValidation(t *testing.T) {
	engine := newTestEngine(newMemStore(), &fakePublisher{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ConfirmOrderRequest)
	}{
		{"empty key", func(r *ConfirmOrderRequest) { r.IdempotencyKey = "  " }},
		{"no items", func(r *ConfirmOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *ConfirmOrderRequest) { r.Items[0].Quantity = 0 }},
		{"negative price", func(r *ConfirmOrderRequest) { r.Items[0].Price = -1; r.Total = -3 }},
		{"total mismatch", func(r *ConfirmOrderRequest) { r.Total = 99999 }},
		{"bad payment method", func(r *ConfirmOrderRequest) { r.PaymentMethod = "CHEQUE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := confirmRequest()
			tt.mutate(req)

			_, _, err := engine.ConfirmOrder(ctx, req, SourceClient)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestConfirmOrderKeyWhitespaceConverges(t *testing.T) {
	// the two confirmation paths must agree on the key byte-for-byte;
	// surrounding whitespace is the one normalization applied
	ms := newMemStore()
	engine := newTestEngine(ms, &fakePublisher{})
	ctx := context.Background()

	first, _, err := engine.ConfirmOrder(ctx, confirmRequest(), SourceWebhook)
	require.NoError(t, err)

	req := confirmRequest()
	req.IdempotencyKey = " order_abc123\n"
	second, created, err := engine.ConfirmOrder(ctx, req, SourceClient)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, ms.inserts)
}

func TestConfirmOrderConcurrentRace(t *testing.T) {
	ms := newMemStore()
	pub := &fakePublisher{}
	engine := newTestEngine(ms, pub)

	ctx := context.Background()

	const callers = 32
	ids := make([]int64, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := SourceWebhook
			if i%2 == 0 {
				source = SourceClient
			}
			order, _, err := engine.ConfirmOrder(ctx, confirmRequest(), source)
			assert.NoError(t, err)
			ids[i] = order.ID
		}(i)
	}
	wg.Wait()

	// exactly one row, every caller saw the same order id
	assert.Equal(t, 1, ms.inserts)
	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, pub.events, 1)
}

func TestConfirmOrderPublishFailureIsSwallowed(t *testing.T) {
	ms := newMemStore()
	engine := newTestEngine(ms, &fakePublisher{fail: true})

	order, created, err := engine.ConfirmOrder(context.Background(), confirmRequest(), SourceWebhook)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
}

func TestTransitionStatus(t *testing.T) {
	ms := newMemStore()
	engine := newTestEngine(ms, &fakePublisher{})
	ctx := context.Background()

	order, _, err := engine.ConfirmOrder(ctx, confirmRequest(), SourceWebhook)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPaid, order.Status)

	shipped, err := engine.TransitionStatus(ctx, order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)

	// backward transition rejected
	_, err = engine.TransitionStatus(ctx, order.ID, models.OrderStatusPaid)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	// CANCELLED unreachable once shipped
	_, err = engine.TransitionStatus(ctx, order.ID, models.OrderStatusCancelled)
	assert.ErrorAs(t, err, &verr)

	delivered, err := engine.TransitionStatus(ctx, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)

	// repeating a transition is a no-op
	same, err := engine.TransitionStatus(ctx, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, same.Status)
}

// contestedStore always loses the guarded update, as if another writer moved
// the order between every read and write.
type contestedStore struct {
	*memStore
	attempts int
}

func (c *contestedStore) UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	c.attempts++
	return false, nil
}

func TestTransitionStatusGivesUpWhenContested(t *testing.T) {
	ms := newMemStore()
	engine := newTestEngine(ms, &fakePublisher{})
	ctx := context.Background()

	order, _, err := engine.ConfirmOrder(ctx, confirmRequest(), SourceWebhook)
	require.NoError(t, err)

	cs := &contestedStore{memStore: ms}
	contested := NewReconciliationEngine(cs, nil, nil, nil)

	_, err = contested.TransitionStatus(ctx, order.ID, models.OrderStatusShipped)
	require.Error(t, err)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "a contested update is not a validation failure")
	assert.Equal(t, 3, cs.attempts, "must stop after a bounded number of attempts")
}
