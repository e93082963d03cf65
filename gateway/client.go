// Package gateway is the request/response boundary to the checkout service.
// It performs no retries; retry policy belongs to the polling layer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainstore/checkout/types"
)

// Default checkout-service endpoints. The environment is picked from the API
// key prefix unless Config.BaseURL overrides it.
const (
	DefaultProductionURL = "https://www.crossmint.com/api/2022-06-09"
	DefaultStagingURL    = "https://staging.crossmint.com/api/2022-06-09"
)

const defaultTimeout = 30 * time.Second

// OrderService is the gateway surface the orchestrator and pollers consume.
type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (*types.Order, error)
	PatchShippingAddress(ctx context.Context, orderID string, addr types.ShippingAddress) (*types.Order, error)
	GetStatus(ctx context.Context, orderID string) (*types.Order, error)
}

// Config configures the HTTP gateway client.
type Config struct {
	// APIKey authenticates every request and, absent BaseURL, selects the
	// production or staging endpoint by its prefix.
	APIKey string

	// BaseURL overrides the key-derived endpoint (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests when no HTTPClient is supplied (optional,
	// defaults to 30s).
	Timeout time.Duration
}

// Client talks to the checkout service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	production bool
}

var _ OrderService = (*Client)(nil)

// NewClient creates a checkout-service client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	production := types.IsProductionKey(cfg.APIKey)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if production {
			baseURL = DefaultProductionURL
		} else {
			baseURL = DefaultStagingURL
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		production: production,
	}
}

// IsProduction reports whether the client authenticates with a production key.
func (c *Client) IsProduction() bool {
	return c.production
}

// CreateOrderRequest is the input to Create.
type CreateOrderRequest struct {
	ProductLocator  string
	PaymentMethod   types.Chain
	Currency        string
	PayerAddress    string
	RecipientEmail  string
	PhysicalAddress *types.ShippingAddress
}

type createOrderBody struct {
	LineItems []types.LineItem `json:"lineItems"`
	Payment   paymentBody      `json:"payment"`
	Recipient *types.Recipient `json:"recipient,omitempty"`
}

type paymentBody struct {
	Method       string `json:"method"`
	Currency     string `json:"currency"`
	PayerAddress string `json:"payerAddress,omitempty"`
}

// Create submits a new order for one product.
func (c *Client) Create(ctx context.Context, req CreateOrderRequest) (*types.Order, error) {
	body := createOrderBody{
		LineItems: []types.LineItem{{ProductLocator: req.ProductLocator}},
		Payment: paymentBody{
			Method:       req.PaymentMethod.String(),
			Currency:     req.Currency,
			PayerAddress: req.PayerAddress,
		},
	}
	if req.RecipientEmail != "" || req.PhysicalAddress != nil {
		body.Recipient = &types.Recipient{
			Email:           req.RecipientEmail,
			PhysicalAddress: req.PhysicalAddress,
		}
	}
	return c.do(ctx, http.MethodPost, "/orders", body)
}

// PatchShippingAddress attaches the delivery address to an existing order.
func (c *Client) PatchShippingAddress(ctx context.Context, orderID string, addr types.ShippingAddress) (*types.Order, error) {
	body := map[string]interface{}{
		"recipient": types.Recipient{PhysicalAddress: &addr},
	}
	return c.do(ctx, http.MethodPatch, "/orders/"+orderID, body)
}

// GetStatus fetches the current order snapshot.
func (c *Client) GetStatus(ctx context.Context, orderID string) (*types.Order, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*types.Order, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeRemoteUnreachable,
			Message: fmt.Sprintf("checkout service unreachable (%s %s)", method, path),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeRemoteUnreachable,
			Message: fmt.Sprintf("reading checkout service response (%s %s)", method, path),
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.CheckoutError{
			Code:       types.ErrCodeRemoteRequestFailed,
			Message:    fmt.Sprintf("checkout service returned %d for %s %s", resp.StatusCode, method, path),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	return ParseOrderResponse(raw)
}

// ParseOrderResponse normalizes the two success payload shapes the checkout
// service produces: order fields nested under an "order" key, or flattened at
// the top level. Both parse into the same canonical Order; the normalized
// JSON is kept on Order.Raw so unknown fields are not lost.
func ParseOrderResponse(body []byte) (*types.Order, error) {
	var envelope struct {
		Order json.RawMessage `json:"order"`
	}
	payload := body
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeRemoteRequestFailed,
			Message: "malformed order response",
			Body:    string(body),
			Err:     err,
		}
	}
	if len(envelope.Order) > 0 && string(envelope.Order) != "null" {
		payload = envelope.Order
	}

	var ord types.Order
	if err := json.Unmarshal(payload, &ord); err != nil {
		return nil, &types.CheckoutError{
			Code:    types.ErrCodeRemoteRequestFailed,
			Message: "malformed order response",
			Body:    string(body),
			Err:     err,
		}
	}

	// Creation responses sometimes keep orderId beside the nested order.
	if ord.OrderID == "" {
		var top struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(body, &top); err == nil {
			ord.OrderID = top.OrderID
		}
	}

	ord.Raw = append(json.RawMessage(nil), payload...)
	return &ord, nil
}
