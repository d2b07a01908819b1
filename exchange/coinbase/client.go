// Package coinbase implements the brokerage ports and a live ticker feed on
// top of the Coinbase Advanced Trade API.
package coinbase

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/jonathanbbiles/BorB4/exchange"
)

const (
	DefaultBaseURL = "https://api.coinbase.com"
	DefaultFeedURL = "wss://advanced-trade-ws.coinbase.com"
)

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	RateLimit rate.Limit
	RateBurst int
}

type CoinbaseClient struct {
	baseURL *url.URL
	http    *http.Client
	apiKey  string
	signer  *ecdsa.PrivateKey
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient returns an authenticated client able to trade.
func NewClient(cfg Config, logger *slog.Logger) (*CoinbaseClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("coinbase: api key and secret are required")
	}
	return newClient(cfg, logger)
}

// NewMarketDataClient returns a client limited to public endpoints, used for
// price polling in dry runs.
func NewMarketDataClient(cfg Config, logger *slog.Logger) (*CoinbaseClient, error) {
	cfg.APIKey, cfg.APISecret = "", ""
	return newClient(cfg, logger)
}

func newClient(cfg Config, logger *slog.Logger) (*CoinbaseClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse base url: %w", err)
	}
	var signer *ecdsa.PrivateKey
	if cfg.APISecret != "" {
		// secrets pasted into .env files usually carry escaped newlines
		secret := strings.ReplaceAll(cfg.APISecret, `\n`, "\n")
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("coinbase: parse api secret: %w", err)
		}
		signer = key
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(10)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CoinbaseClient{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		apiKey:  cfg.APIKey,
		signer:  signer,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.With("component", "coinbase"),
		now:     time.Now,
	}, nil
}

// buildJWT signs a short-lived CDP token. uri is "METHOD host/path" for REST
// calls and empty for websocket subscriptions.
func (c *CoinbaseClient) buildJWT(uri string) (string, error) {
	if c.signer == nil {
		return "", errors.New("client has no api credentials")
	}
	now := c.now().UTC()
	claims := jwt.MapClaims{
		"sub": c.apiKey,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	}
	if uri != "" {
		claims["uri"] = uri
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.apiKey
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	token.Header["nonce"] = nonce
	return token.SignedString(c.signer)
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (c *CoinbaseClient) sendWithJwt(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	return c.send(ctx, op, method, path, query, body, out, true)
}

func (c *CoinbaseClient) sendPublic(ctx context.Context, op, path string, out any) error {
	return c.send(ctx, op, http.MethodGet, path, nil, nil, out, false)
}

func (c *CoinbaseClient) send(ctx context.Context, op, method, path string, query url.Values, body any, out any, auth bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &exchange.TransportError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	u := *c.baseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		tok, err := c.buildJWT(method + " " + u.Host + u.Path)
		if err != nil {
			return fmt.Errorf("%s: sign request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &exchange.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

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
