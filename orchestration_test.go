package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathanbbiles/BorB4/api_helper"
	"github.com/jonathanbbiles/BorB4/entities/manager"
	"github.com/jonathanbbiles/BorB4/entities/signaler"
	"github.com/jonathanbbiles/BorB4/entities/trader"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestEventsHandler(t *testing.T) {
	events := journal.NewMemory(10)
	for _, typ := range []journal.EventType{journal.EventGuardSkip, journal.EventEntrySubmitted, journal.EventEntryFilled} {
		events.Record(context.Background(), journal.Event{Type: typ, Symbol: "BTC/USD"})
	}
	h := loggingMiddleware(eventsHandler(events, nil), quiet)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []journal.Event
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?limit=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestNewLoggerFallsBackToStdout(t *testing.T) {
	// a regular file where the log directory should be
	dir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(dir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	logger, closer := newLogger(dir, slog.LevelInfo)
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected a logger")
	}
}

type fakeHistory struct {
	symbol string
	limit  int
	err    error
}

func (f *fakeHistory) Recent(_ context.Context, symbol string, limit int) ([]journal.Event, error) {
	f.symbol, f.limit = symbol, limit
	if f.err != nil {
		return nil, f.err
	}
	return []journal.Event{{Type: journal.EventComplete, Symbol: symbol}}, nil
}

func decodeEvents(t *testing.T, rec *httptest.ResponseRecorder) []journal.Event {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []journal.Event
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestEventsHandlerBySymbol(t *testing.T) {
	events := journal.NewMemory(10)
	for _, sym := range []string{"BTC/USD", "ETH/USD", "BTC/USD", "BTC/USD"} {
		events.Record(context.Background(), journal.Event{Type: journal.EventGuardSkip, Symbol: sym})
	}

	rec := httptest.NewRecorder()
	eventsHandler(events, nil)(rec, httptest.NewRequest(http.MethodGet, "/events?symbol=BTC/USD&limit=2", nil))
	got := decodeEvents(t, rec)
	if len(got) != 2 || got[0].Symbol != "BTC/USD" || got[1].Symbol != "BTC/USD" {
		t.Errorf("in-memory events = %+v", got)
	}

	history := &fakeHistory{}
	rec = httptest.NewRecorder()
	eventsHandler(events, history)(rec, httptest.NewRequest(http.MethodGet, "/events?symbol=ETH/USD&limit=5", nil))
	got = decodeEvents(t, rec)
	if history.symbol != "ETH/USD" || history.limit != 5 || len(got) != 1 || got[0].Type != journal.EventComplete {
		t.Errorf("persisted read = %+v, query %s/%d", got, history.symbol, history.limit)
	}

	history.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	eventsHandler(events, history)(rec, httptest.NewRequest(http.MethodGet, "/events?symbol=ETH/USD", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestToggleHandler(t *testing.T) {
	toggles := api_helper.NewToggleStore([]string{"BTC/USD"}, true)
	h := loggingMiddleware(toggleHandler(toggles), quiet)

	post := func(query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle?"+query, nil))
		return rec
	}

	if rec := post("symbol=BTC/USD"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if on, _ := toggles.Get("BTC/USD"); on {
		t.Error("toggle should have disabled BTC/USD")
	}
	if rec := post("symbol=BTC/USD&enabled=true"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if on, _ := toggles.Get("BTC/USD"); !on {
		t.Error("enabled=true should have enabled BTC/USD")
	}

	for query, want := range map[string]int{
		"":                             http.StatusBadRequest,
		"symbol=BTC/USD&enabled=maybe": http.StatusBadRequest,
		"symbol=DOGE/USD":              http.StatusNotFound,
	} {
		if rec := post(query); rec.Code != want {
			t.Errorf("%q: status = %d, want %d", query, rec.Code, want)
		}
	}
}

func TestStateHandler(t *testing.T) {
	toggles := api_helper.NewToggleStore([]string{"BTC/USD", "ETH/USD"}, true)
	prices := signaler.NewPriceStore(10)
	router := manager.NewTickRouter(toggles, prices)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	router.Ingest(models.Tick{Symbol: "BTC/USD", Price: 101.5, Time: at})
	router.Ingest(models.Tick{Symbol: "DOGE/USD", Price: 0.1, Time: at})

	factory := func(string) (*trader.Trader, error) { return nil, errors.New("not used") }
	mgr, err := manager.NewManager(manager.DefaultManagerCfg(), prices, signaler.NewTalibEvaluator(signaler.DefaultEvaluatorConfig()), toggles, factory, quiet)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	stateHandler(mgr, prices, router)(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.DroppedTicks != 1 {
		t.Errorf("dropped ticks = %d, want 1", got.DroppedTicks)
	}
	btc := got.Symbols["BTC/USD"]
	if !btc.Enabled || btc.Phase != "idle" || btc.LastPrice != 101.5 || !btc.LastTickAt.Equal(at) {
		t.Errorf("BTC/USD = %+v", btc)
	}
	if eth, ok := got.Symbols["ETH/USD"]; !ok || eth.LastPrice != 0 || !eth.LastRun.IsZero() {
		t.Errorf("ETH/USD = %+v", eth)
	}
}
