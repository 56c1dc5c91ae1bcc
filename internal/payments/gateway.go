package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GatewayClient queries the payment gateway's order API. Used by the webhook
// path to verify captured payment status before confirming an order.
type GatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGatewayClient creates a gateway client. The 10s timeout keeps the
// webhook response inside the provider's retry SLA.
func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayOrderResponse struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
}

// IsOrderPaid checks with the gateway whether the order's payment was
// captured.
func (g *GatewayClient) IsOrderPaid(ctx context.Context, gatewayOrderID string) (bool, error) {
	url := fmt.Sprintf("%s/orders/%s", g.baseURL, gatewayOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("x-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway order lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gateway order lookup returned %d", resp.StatusCode)
	}

	var body gatewayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return body.OrderStatus == "PAID", nil
}
