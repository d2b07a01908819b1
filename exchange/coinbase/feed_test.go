package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonathanbbiles/BorB4/models"
)

type recordingSink struct {
	mu    sync.Mutex
	ticks []models.Tick
	got   chan struct{}
}

func (s *recordingSink) Ingest(t models.Tick) {
	s.mu.Lock()
	s.ticks = append(s.ticks, t)
	s.mu.Unlock()
	select {
	case s.got <- struct{}{}:
	default:
	}
}

func TestFeed_PublishesTicks(t *testing.T) {
	subs := make(chan map[string]any, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var sub map[string]any
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subs <- sub
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"heartbeats","events":[]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"ticker","timestamp":"2024-01-02T03:04:05Z","events":[{"type":"update","tickers":[{"product_id":"BTC-USD","price":"42000.5"}]}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{got: make(chan struct{}, 1)}
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTC/USD"}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	select {
	case <-sink.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no tick received")
	}
	cancel()
	<-done

	first := <-subs
	if first["channel"] != "ticker" || first["type"] != "subscribe" {
		t.Errorf("unexpected subscription %v", first)
	}
	products, _ := first["product_ids"].([]any)
	if len(products) != 1 || products[0] != "BTC-USD" {
		t.Errorf("unexpected product ids %v", first["product_ids"])
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(sink.ticks))
	}
	tick := sink.ticks[0]
	if tick.Symbol != "BTC/USD" || tick.Price != 42000.5 || tick.Time.Year() != 2024 {
		t.Errorf("unexpected tick %+v", tick)
	}
	if feed.Connected() {
		t.Error("feed should be disconnected after shutdown")
	}
}
