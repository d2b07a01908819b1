// Package alpaca talks to the Alpaca trading REST API.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/models"
)

const (
	PaperURL = "https://paper-api.alpaca.markets"
	LiveURL  = "https://api.alpaca.markets"
)

type Config struct {
	BaseURL   string
	KeyID     string
	SecretKey string
	Timeout   time.Duration
	RateLimit rate.Limit
	RateBurst int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   PaperURL,
		Timeout:   10 * time.Second,
		RateLimit: rate.Limit(3),
		RateBurst: 3,
	}
}

type Client struct {
	baseURL   string
	keyID     string
	secretKey string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ exchange.Brokerage = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, errors.New("alpaca: key id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PaperURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		keyID:     cfg.KeyID,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:    logger.With("component", "alpaca"),
	}, nil
}

func (c *Client) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	var out accountResponse
	if err := c.do(ctx, "get account", http.MethodGet, "/v2/account", nil, &out); err != nil {
		return models.AccountSnapshot{}, err
	}
	return out.toModel(), nil
}

func (c *Client) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	var out positionResponse
	path := "/v2/positions/" + url.PathEscape(exchange.NormalizeSymbol(symbol))
	err := c.do(ctx, "get position", http.MethodGet, path, nil, &out)
	if exchange.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := out.toModel(symbol)
	if !p.Quantity.IsPositive() {
		return nil, nil
	}
	return &p, nil
}

func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]models.OrderRecord, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("symbols", symbol)
	var out []orderResponse
	if err := c.do(ctx, "list open orders", http.MethodGet, "/v2/orders?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	records := make([]models.OrderRecord, 0, len(out))
	for _, o := range out {
		r, err := o.toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderRecord, error) {
	body, err := json.Marshal(newOrderBody(req))
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("encode order: %w", err)
	}
	var out orderResponse
	if err := c.do(ctx, "submit order", http.MethodPost, "/v2/orders", body, &out); err != nil {
		return models.OrderRecord{}, err
	}
	return out.toModel()
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (models.OrderRecord, error) {
	var out orderResponse
	err := c.do(ctx, "get order", http.MethodGet, "/v2/orders/"+url.PathEscape(orderID), nil, &out)
	if exchange.IsNotFound(err) {
		return models.OrderRecord{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return models.OrderRecord{}, err
	}
	return out.toModel()
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, "cancel order", http.MethodDelete, "/v2/orders/"+url.PathEscape(orderID), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &exchange.TransportError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &exchange.TransportError{Op: op, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &exchange.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &exchange.TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
