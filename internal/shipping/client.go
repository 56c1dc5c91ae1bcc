package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

// minPackageWeight is the floor the carrier accepts, in kg
const minPackageWeight = 0.5

// Failure is a typed carrier error. The booking subsystem is best effort:
// callers log the failure and move on, they never fail the order over it.
type Failure struct {
	Op         string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("carrier %s failed with status %d", f.Op, f.StatusCode)
	}
	return fmt.Sprintf("carrier %s failed: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ShipmentResult is the carrier's booking confirmation
type ShipmentResult struct {
	CarrierOrderID string `json:"order_id"`
	ShipmentID     string `json:"shipment_id"`
	AWBCode        string `json:"awb_code"`
	CourierName    string `json:"courier_name"`
}

// Rate is one courier quote for a package
type Rate struct {
	CourierName string  `json:"courier_name"`
	Charge      float64 `json:"rate"`
	ETADays     int     `json:"estimated_delivery_days"`
}

// TrackingStatus is the current scan status of a shipment
type TrackingStatus struct {
	AWBCode       string `json:"awb_code"`
	CurrentStatus string `json:"current_status"`
	Destination   string `json:"destination"`
}

// Client talks to the carrier API. All operations return *Failure on any
// non-2xx or transport error; nothing propagates past the caller.
type Client struct {
	baseURL        string
	email          string
	password       string
	pickupLocation string
	client         *http.Client
	tokens         *TokenCache
	logger         *zap.Logger
}

// NewClient creates a carrier client with its own token cache
func NewClient(baseURL, email, password, pickupLocation string) *Client {
	c := &Client{
		baseURL:        baseURL,
		email:          email,
		password:       password,
		pickupLocation: pickupLocation,
		client:         &http.Client{Timeout: 10 * time.Second},
		logger:         util.GetLogger(),
	}
	c.tokens = NewTokenCache(c)
	return c
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// Authenticate performs the carrier login. Called by the token cache only.
func (c *Client) Authenticate(ctx context.Context) (string, time.Duration, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("carrier auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("carrier auth returned %d", resp.StatusCode)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", 0, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if auth.Token == "" {
		return "", 0, fmt.Errorf("carrier auth returned empty token")
	}

	ttl := time.Duration(auth.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return auth.Token, ttl, nil
}

// PackageWeight estimates the package weight in kg from the item count,
// with the carrier's minimum as a floor.
func PackageWeight(itemCount int) float64 {
	weight := 0.5 * float64(itemCount)
	if weight < minPackageWeight {
		return minPackageWeight
	}
	return weight
}

type createShipmentRequest struct {
	OrderID             string             `json:"order_id"`
	OrderDate           string             `json:"order_date"`
	PickupLocation      string             `json:"pickup_location"`
	BillingCustomerName string             `json:"billing_customer_name"`
	BillingPhone        string             `json:"billing_phone"`
	BillingEmail        string             `json:"billing_email,omitempty"`
	BillingAddress      string             `json:"billing_address"`
	ShippingIsBilling   bool               `json:"shipping_is_billing"`
	OrderItems          []shipmentItem     `json:"order_items"`
	PaymentMethod       string             `json:"payment_method"`
	SubTotal            float64            `json:"sub_total"`
	Weight              float64            `json:"weight"`
}

type shipmentItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

// CreateShipment books a shipment for a confirmed order
func (c *Client) CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (*ShipmentResult, error) {
	paymentMethod := "Prepaid"
	if order.PaymentMethod == models.PaymentMethodCOD {
		paymentMethod = "COD"
	}

	shipItems := make([]shipmentItem, 0, len(items))
	for _, item := range items {
		name := item.ProductID
		if item.Size.Valid && item.Size.String != "" {
			name = fmt.Sprintf("%s (%s)", item.ProductID, item.Size.String)
		}
		shipItems = append(shipItems, shipmentItem{
			Name:         name,
			SKU:          item.ProductID,
			Units:        item.Quantity,
			SellingPrice: float64(item.UnitPrice) / 100,
		})
	}

	itemCount := 0
	for _, item := range items {
		itemCount += item.Quantity
	}

	payload := createShipmentRequest{
		OrderID:             order.IdempotencyKey,
		OrderDate:           order.CreatedAt.Format("2006-01-02 15:04"),
		PickupLocation:      c.pickupLocation,
		BillingCustomerName: order.CustomerName,
		BillingPhone:        order.CustomerPhone,
		BillingEmail:        order.CustomerEmail.String,
		BillingAddress:      order.ShippingAddress,
		ShippingIsBilling:   true,
		OrderItems:          shipItems,
		PaymentMethod:       paymentMethod,
		SubTotal:            float64(order.TotalAmount) / 100,
		Weight:              PackageWeight(itemCount),
	}

	var result ShipmentResult
	if err := c.doJSON(ctx, "create_shipment", http.MethodPost, "/orders/create", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateLabel requests a shipping label for a booked shipment
func (c *Client) GenerateLabel(ctx context.Context, shipmentID string) (string, error) {
	var result struct {
		LabelURL string `json:"label_url"`
	}
	payload := map[string][]string{"shipment_id": {shipmentID}}
	if err := c.doJSON(ctx, "generate_label", http.MethodPost, "/courier/generate/label", payload, &result); err != nil {
		return "", err
	}
	return result.LabelURL, nil
}

// RequestPickup schedules a pickup for a booked shipment
func (c *Client) RequestPickup(ctx context.Context, shipmentID string) error {
	payload := map[string][]string{"shipment_id": {shipmentID}}
	return c.doJSON(ctx, "request_pickup", http.MethodPost, "/courier/generate/pickup", payload, nil)
}

// GetRates quotes available couriers for a package
func (c *Client) GetRates(ctx context.Context, pickupPin, deliveryPin string, weight float64, cod bool) ([]Rate, error) {
	codFlag := 0
	if cod {
		codFlag = 1
	}
	path := fmt.Sprintf("/courier/serviceability?pickup_postcode=%s&delivery_postcode=%s&weight=%.2f&cod=%d",
		pickupPin, deliveryPin, weight, codFlag)

	var result struct {
		Data struct {
			AvailableCouriers []Rate `json:"available_courier_companies"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, "get_rates", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Data.AvailableCouriers, nil
}

// TrackShipment fetches the latest tracking status for an AWB
func (c *Client) TrackShipment(ctx context.Context, awbCode string) (*TrackingStatus, error) {
	var result TrackingStatus
	if err := c.doJSON(ctx, "track_shipment", http.MethodGet, "/courier/track/awb/"+awbCode, nil, &result); err != nil {
		return nil, err
	}
	result.AWBCode = awbCode
	return &result, nil
}

// doJSON runs one bearer-authenticated carrier call and decodes the JSON
// response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload, out interface{}) error {
	start := time.Now()
	defer func() {
		util.CarrierRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		util.ShipmentFailuresTotal.WithLabelValues(op).Inc()
		return &Failure{Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &Failure{Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Failure{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		util.ShipmentFailuresTotal.WithLabelValues(op).Inc()
		return &Failure{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.ShipmentFailuresTotal.WithLabelValues(op).Inc()
		c.logger.Warn("Carrier call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &Failure{Op: op, StatusCode: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Failure{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return nil
}
