package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenSource supplies the bearer token for authenticated calls. An empty
// token means guest; no Authorization header is sent.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Client wraps the backend cart and order endpoints. All response-shape
// ambiguity is resolved by NormalizeSnapshot before a result leaves this
// package.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	logger         *zap.Logger
	onUnauthorized func()
}

type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zap.Logger
	// OnUnauthorized runs when a non-auth endpoint returns 401, letting the
	// caller drop a stale stored session.
	OnUnauthorized func()
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		tokens:         cfg.Tokens,
		logger:         logger,
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

// FetchCart returns the server's current cart for the session user.
func (c *Client) FetchCart(ctx context.Context) (Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/carts/users/cart", nil)
	if err != nil {
		return Snapshot{}, err
	}
	return NormalizeSnapshot(body)
}

// AddProduct adds a product with an initial quantity. The endpoint is not
// idempotent: a repeat add for the same product fails with the
// already-exists signal instead of adjusting the quantity.
func (c *Client) AddProduct(ctx context.Context, productID, quantity int64) (Snapshot, error) {
	path := fmt.Sprintf("/carts/products/%d/quantity/%d", productID, quantity)
	body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return Snapshot{}, err
	}
	return NormalizeSnapshot(body)
}

// IncrementProduct raises the line quantity by exactly one unit.
func (c *Client) IncrementProduct(ctx context.Context, productID int64) error {
	return c.putQuantity(ctx, productID, "add")
}

// DecrementProduct lowers the line quantity by exactly one unit. The backend
// deletes the line outright when the quantity reaches zero, so callers clamp
// before invoking this.
func (c *Client) DecrementProduct(ctx context.Context, productID int64) error {
	return c.putQuantity(ctx, productID, "delete")
}

// putQuantity tries the current plural path first and falls back to the
// legacy singular path still served by older deployments.
func (c *Client) putQuantity(ctx context.Context, productID int64, operation string) error {
	paths := []string{
		fmt.Sprintf("/carts/products/%d/quantity/%s", productID, operation),
		fmt.Sprintf("/cart/products/%d/quantity/%s", productID, operation),
	}
	var lastErr error
	for _, path := range paths {
		if _, err := c.do(ctx, http.MethodPut, path, nil); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// RemoveProduct deletes a line from the identified server cart.
func (c *Client) RemoveProduct(ctx context.Context, cartID, productID int64) error {
	path := fmt.Sprintf("/carts/%d/product/%d", cartID, productID)
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// PaymentDetails is the order placement payload.
type PaymentDetails struct {
	AddressID         int64  `json:"addressId"`
	PGName            string `json:"pgName"`
	PGPaymentID       string `json:"pgPaymentId"`
	PGStatus          string `json:"pgStatus"`
	PGResponseMessage string `json:"pgResponseMessage"`
}

func (p PaymentDetails) withDefaults() PaymentDetails {
	if p.PGName == "" {
		p.PGName = "NA"
	}
	if p.PGPaymentID == "" {
		p.PGPaymentID = "NA"
	}
	if p.PGStatus == "" {
		p.PGStatus = "SUCCESS"
	}
	if p.PGResponseMessage == "" {
		p.PGResponseMessage = "OK"
	}
	return p
}

// PlaceOrder submits the checkout for the given payment method and returns
// the raw order record.
func (c *Client) PlaceOrder(ctx context.Context, method string, payment PaymentDetails) (json.RawMessage, error) {
	path := "/order/users/payments/" + strings.TrimSpace(method)
	payload, err := json.Marshal(payment.withDefaults())
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

// SignIn exchanges credentials for the opaque auth envelope.
func (c *Client) SignIn(ctx context.Context, email, password string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "username": email, "password": password})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/auth/signin", payload)
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, fields map[string]string) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/auth/signup", payload)
	return err
}

// SignOut tells the backend to drop the session. Best effort; local state is
// cleared regardless.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/signout", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.BearerToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("gateway: resolve token: %w", err)
		}
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer response.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return body, nil
	}

	statusErr := &StatusError{Status: response.StatusCode, Message: extractMessage(body)}
	if response.StatusCode == http.StatusUnauthorized && !isAuthPath(path) && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
	c.logger.Debug("backend call failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", response.StatusCode))
	return nil, statusErr
}

func extractMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func isAuthPath(path string) bool {
	return strings.Contains(path, "/auth/signin") || strings.Contains(path, "/auth/signup")
}
