package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/store"
	"storefront/internal/util"
)

// Confirmation sources, used as metric labels
const (
	SourceWebhook = "webhook"
	SourceClient  = "client"
)

// OrderStore is the slice of the store the engine needs
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
}

// OrderCache is the duplicate-confirmation fast path. Cache failures are
// never fatal; the store remains the source of truth.
type OrderCache interface {
	GetCachedOrder(ctx context.Context, idempotencyKey string) (*models.Order, error)
	SetCachedOrder(ctx context.Context, order *models.Order) error
}

// ConfirmationPublisher dispatches the post-commit side-effect event
type ConfirmationPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
}

// ReconciliationEngine converges the payment webhook and the client backup
// call into exactly one persisted order per idempotency key.
type ReconciliationEngine struct {
	store     OrderStore
	cache     OrderCache
	publisher ConfirmationPublisher
	split     *payments.SplitCalculator
	logger    *zap.Logger
}

func NewReconciliationEngine(
	orderStore OrderStore,
	cache OrderCache,
	publisher ConfirmationPublisher,
	split *payments.SplitCalculator,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		store:     orderStore,
		cache:     cache,
		publisher: publisher,
		split:     split,
		logger:    util.GetLogger(),
	}
}

// ConfirmOrderRequest is a confirmation signal from either path
type ConfirmOrderRequest struct {
	IdempotencyKey  string             `json:"idempotency_key" binding:"required"`
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerPhone   string             `json:"customer_phone" binding:"required"`
	CustomerEmail   string             `json:"customer_email,omitempty"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	Total           int64              `json:"total" binding:"required"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
	Items           []ConfirmOrderItem `json:"items" binding:"required,min=1"`
}

type ConfirmOrderItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Price     int64  `json:"price"`
	Size      string `json:"size,omitempty"`
}

// ConfirmOrder is idempotent under arbitrary repeated or concurrent calls
// with the same idempotency key, regardless of which path the call arrives
// on or in what order. It returns the order and whether this call created it.
func (e *ReconciliationEngine) ConfirmOrder(ctx context.Context, req *ConfirmOrderRequest, source string) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "ReconciliationEngine.ConfirmOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ConfirmationLatency.Observe(time.Since(start).Seconds())
	}()

	if err := e.validate(req); err != nil {
		util.ConfirmationsFailedTotal.WithLabelValues("validation").Inc()
		return nil, false, err
	}

	// The gateway issues the key; both paths must present it byte-identical.
	// Trimming surrounding whitespace is the only normalization applied.
	key := strings.TrimSpace(req.IdempotencyKey)

	if existing := e.lookupCached(ctx, key); existing != nil {
		util.DuplicateConfirmationsTotal.WithLabelValues(source).Inc()
		return existing, false, nil
	}

	existing, err := e.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		util.ConfirmationsFailedTotal.WithLabelValues("storage").Inc()
		return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		e.logger.Info("Duplicate confirmation resolved to existing order",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", existing.ID),
			zap.String("source", source))
		util.DuplicateConfirmationsTotal.WithLabelValues(source).Inc()
		e.cacheOrder(ctx, existing)
		return existing, false, nil
	}

	order := &models.Order{
		IdempotencyKey:  key,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   sql.NullString{String: req.CustomerEmail, Valid: req.CustomerEmail != ""},
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     req.Total,
		Status:          models.InitialStatus(req.PaymentMethod),
		PaymentMethod:   req.PaymentMethod,
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Size:      sql.NullString{String: item.Size, Valid: item.Size != ""},
		})
	}

	err = e.store.CreateOrder(ctx, order, items)
	if errors.Is(err, store.ErrDuplicateKey) {
		// a concurrent confirmation won the insert race; that is success
		winner, ferr := e.store.GetOrderByIdempotencyKey(ctx, key)
		if ferr != nil || winner == nil {
			util.ConfirmationsFailedTotal.WithLabelValues("storage").Inc()
			return nil, false, fmt.Errorf("failed to fetch order after lost race: %w", ferr)
		}
		e.logger.Info("Lost creation race, returning winner's order",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", winner.ID),
			zap.String("source", source))
		util.DuplicateConfirmationsTotal.WithLabelValues(source).Inc()
		e.cacheOrder(ctx, winner)
		return winner, false, nil
	}
	if err != nil {
		util.ConfirmationsFailedTotal.WithLabelValues("storage").Inc()
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersConfirmedTotal.WithLabelValues(source).Inc()
	e.logger.Info("Order confirmed",
		zap.Int64("order_id", order.ID),
		zap.String("idempotency_key", key),
		zap.String("status", order.Status),
		zap.String("source", source))

	e.recordSplit(order)
	e.cacheOrder(ctx, order)

	// Side effects dispatch only after the order is durably committed, and
	// their failure never reaches the caller: the payment is already
	// captured and must not be contradicted by a downstream hiccup.
	e.publishConfirmed(ctx, order, items)

	return order, true, nil
}

func (e *ReconciliationEngine) validate(req *ConfirmOrderRequest) error {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return validationErrorf("idempotency key is required")
	}
	if len(req.Items) == 0 {
		return validationErrorf("order must contain at least one item")
	}
	if req.PaymentMethod != models.PaymentMethodOnline && req.PaymentMethod != models.PaymentMethodCOD {
		return validationErrorf("unknown payment method %q", req.PaymentMethod)
	}

	var sum int64
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return validationErrorf("item %d: quantity must be positive", i)
		}
		if item.Price < 0 {
			return validationErrorf("item %d: price must not be negative", i)
		}
		sum += item.Price * int64(item.Quantity)
	}
	if sum != req.Total {
		return validationErrorf("total %d does not match item sum %d", req.Total, sum)
	}
	return nil
}

func (e *ReconciliationEngine) lookupCached(ctx context.Context, key string) *models.Order {
	if e.cache == nil {
		return nil
	}
	order, err := e.cache.GetCachedOrder(ctx, key)
	if err != nil {
		e.logger.Warn("Order cache lookup failed", zap.Error(err))
		return nil
	}
	return order
}

func (e *ReconciliationEngine) cacheOrder(ctx context.Context, order *models.Order) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetCachedOrder(ctx, order); err != nil {
		e.logger.Warn("Failed to cache order",
			zap.String("idempotency_key", order.IdempotencyKey),
			zap.Error(err))
	}
}

func (e *ReconciliationEngine) recordSplit(order *models.Order) {
	if e.split == nil || order.PaymentMethod != models.PaymentMethodOnline {
		return
	}
	result, err := e.split.ComputeSplit(order.TotalAmount)
	if err != nil {
		e.logger.Warn("Split computation failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	util.CommissionAmountTotal.Add(float64(result.CommissionAmount))
	e.logger.Info("Payment split computed",
		zap.Int64("order_id", order.ID),
		zap.Int64("merchant_amount", result.MerchantAmount),
		zap.Int64("commission_amount", result.CommissionAmount))
}

func (e *ReconciliationEngine) publishConfirmed(ctx context.Context, order *models.Order, items []models.OrderItem) {
	if e.publisher == nil {
		return
	}

	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Size:      item.Size.String,
		})
	}

	event := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		IdempotencyKey:  order.IdempotencyKey,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerEmail:   order.CustomerEmail.String,
		ShippingAddress: order.ShippingAddress,
		TotalAmount:     order.TotalAmount,
		PaymentMethod:   order.PaymentMethod,
		Items:           eventItems,
	}

	if err := e.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		// the shipment retry job picks up orders the workers never saw
		e.logger.Error("Failed to publish OrderConfirmed event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// GetOrder retrieves an order with its items
func (e *ReconciliationEngine) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := e.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := e.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// TransitionStatus moves an order along the PENDING→PAID→SHIPPED→DELIVERED
// chain (CANCELLED from PENDING or PAID). Backward transitions are rejected;
// a concurrent transition that already applied is treated as resolved.
func (e *ReconciliationEngine) TransitionStatus(ctx context.Context, orderID int64, to string) (*models.Order, error) {
	// the guarded update only loses to a concurrent transition, so a couple
	// of re-reads settle any realistic interleaving
	for attempt := 0; attempt < 3; attempt++ {
		order, err := e.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if order.Status == to {
			return order, nil
		}
		if !models.CanTransition(order.Status, to) {
			return nil, validationErrorf("illegal status transition %s -> %s", order.Status, to)
		}

		applied, err := e.store.UpdateOrderStatus(ctx, orderID, order.Status, to)
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		if applied {
			order.Status = to
			e.cacheOrder(ctx, order)
			return order, nil
		}
		// someone else moved the order meanwhile; re-read and re-judge
	}

	return nil, fmt.Errorf("order %d status kept changing concurrently", orderID)
}
