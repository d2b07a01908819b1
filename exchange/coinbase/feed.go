package coinbase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/models"
)

// TickSink receives every price observed on the feed.
type TickSink interface {
	Ingest(tick models.Tick)
}

type tickerMessage struct {
	Channel string `json:"channel"`
	Events  []struct {
		Type    string `json:"type"`
		Tickers []struct {
			ProductID string          `json:"product_id"`
			Price     decimal.Decimal `json:"price"`
		} `json:"tickers"`
	} `json:"events"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed keeps a market-data websocket open and pushes ticker prices into a
// sink, reconnecting with capped exponential backoff.
type Feed struct {
	url     string
	symbols []string
	sink    TickSink
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	pingInterval time.Duration
	maxBackoff   time.Duration
}

func NewFeed(wsURL string, symbols []string, sink TickSink, logger *slog.Logger) *Feed {
	if wsURL == "" {
		wsURL = DefaultFeedURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		url:          wsURL,
		symbols:      append([]string(nil), symbols...),
		sink:         sink,
		logger:       logger.With("component", "coinbase_feed"),
		pingInterval: 30 * time.Second,
		maxBackoff:   30 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, resp, err := d.DialContext(ctx, f.url, nil)
		if err != nil {
			if resp != nil {
				f.logger.Warn("websocket dial failed", "status", resp.StatusCode, "error", err)
			} else {
				f.logger.Warn("websocket dial failed", "error", err)
			}
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > f.maxBackoff {
				backoff = f.maxBackoff
			}
			continue
		}

		if err := f.subscribe(conn); err != nil {
			f.logger.Warn("subscription failed", "error", err)
			_ = conn.Close()
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		f.setConn(conn)
		backoff = time.Second
		f.logger.Info("websocket connected", "symbols", f.symbols)

		done := make(chan struct{})
		go func() {
			defer close(done)
			f.readLoop(conn)
		}()
		pingCtx, stopPing := context.WithCancel(ctx)
		go f.pingLoop(pingCtx, conn)

		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"))
			_ = conn.Close()
			stopPing()
			<-done
			f.setConn(nil)
			return
		case <-done:
			stopPing()
			_ = conn.Close()
			f.setConn(nil)
			f.logger.Warn("websocket disconnected; will attempt reconnect")
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return
			}
		}
	}
}

func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	products := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		products = append(products, ProductID(s))
	}
	for _, channel := range []string{"ticker", "heartbeats"} {
		sub := map[string]any{
			"type":        "subscribe",
			"product_ids": products,
			"channel":     channel,
		}
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.logger.Debug("read loop exiting", "error", err)
			return
		}
		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Warn("malformed message", "error", err)
			continue
		}
		if msg.Channel != "ticker" {
			continue
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		for _, ev := range msg.Events {
			for _, t := range ev.Tickers {
				if !t.Price.IsPositive() {
					continue
				}
				f.sink.Ingest(models.Tick{
					Symbol: symbolFromProduct(t.ProductID),
					Price:  t.Price.InexactFloat64(),
					Time:   ts,
				})
			}
		}
	}
}

// PollPrices is the REST fallback when no websocket feed is configured.
func (c *CoinbaseClient) PollPrices(ctx context.Context, symbols []string, interval time.Duration, sink TickSink) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for _, s := range symbols {
			price, err := c.GetProductPrice(ctx, s)
			if err != nil {
				c.logger.Warn("price poll failed", "symbol", s, "error", err)
				continue
			}
			sink.Ingest(models.Tick{Symbol: s, Price: price.InexactFloat64(), Time: time.Now()})
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
