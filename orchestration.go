package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathanbbiles/BorB4/api_helper"
	"github.com/jonathanbbiles/BorB4/config"
	"github.com/jonathanbbiles/BorB4/entities/manager"
	"github.com/jonathanbbiles/BorB4/entities/signaler"
	"github.com/jonathanbbiles/BorB4/entities/trader"
	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/exchange/alpaca"
	"github.com/jonathanbbiles/BorB4/exchange/coinbase"
	"github.com/jonathanbbiles/BorB4/exchange/paper"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/journal/postgres"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
	"github.com/jonathanbbiles/BorB4/notify"
	"github.com/jonathanbbiles/BorB4/redislock"
)

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer := newLogger(cfg.LogDir, cfg.LogLevel)
	defer closer.Close()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("exiting with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exiting")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	toggles := api_helper.NewToggleStore(cfg.Symbols, true)
	prices := signaler.NewPriceStore(cfg.PriceHistory)
	router := manager.NewTickRouter(toggles, prices)

	broker, feed, err := buildBroker(cfg, router, logger)
	if err != nil {
		return err
	}

	events := journal.NewMemory(1000)
	recorders := journal.Multi{journal.NewLogRecorder(logger), events}
	var history eventHistory
	if cfg.DatabaseURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.DatabaseURL))
		if err != nil {
			return err
		}
		defer pool.Close()
		sink, err := postgres.NewSink(pool, logger)
		if err != nil {
			return err
		}
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sink.Close(drainCtx); err != nil {
				logger.Warn("trade events not fully persisted", "error", err)
			}
		}()
		if err := sink.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		recorders = append(recorders, sink)
		history = sink
		logger.Info("trade events persisted to postgres")
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var locker trader.Locker
	if cfg.RedisAddr != "" {
		l, client, err := redislock.NewFromAddr(cfg.RedisAddr, cfg.RedisPassword, redislock.Config{TTL: cfg.LockTTL}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = l
		logger.Info("cross-process symbol lock enabled", "addr", cfg.RedisAddr)
	}

	policy := cfg.Policy()
	factory := func(symbol string) (*trader.Trader, error) {
		return trader.NewTrader(symbol, policy, trader.Deps{
			Broker:   broker,
			Journal:  recorders,
			Notifier: notifier,
			Locker:   locker,
			Logger:   logger,
		})
	}

	mgr, err := manager.NewManager(cfg.Scheduler, prices, signaler.NewTalibEvaluator(cfg.Evaluator), toggles, factory, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/state", stateHandler(mgr, prices, router))
	mux.HandleFunc("/events", eventsHandler(events, history))
	mux.HandleFunc("POST /toggle", toggleHandler(toggles))

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	go feed(ctx)
	for _, symbol := range cfg.Symbols {
		go prices.Watch(ctx, symbol, func(t models.Tick) {
			metrics.SetLastPrice(t.Symbol, t.Price)
		})
	}

	logger.Info("engine started", "broker", cfg.Broker.String(), "symbols", cfg.Symbols, "addr", cfg.MetricsAddr)
	runErr := mgr.Run(ctx)

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	return runErr
}

// buildBroker returns the selected brokerage and the price feed that keeps
// the price store current. The paper broker sits on the feed too so its
// orders fill against live prices.
func buildBroker(cfg config.Config, router *manager.TickRouter, logger *slog.Logger) (exchange.Brokerage, func(context.Context), error) {
	wsFeed := func(ctx context.Context) {
		coinbase.NewFeed(cfg.CoinbaseFeedURL, cfg.Symbols, router, logger).Run(ctx)
	}

	switch cfg.Broker {
	case enum.BrokerAlpaca:
		acfg := alpaca.DefaultConfig()
		acfg.BaseURL = cfg.AlpacaBaseURL
		acfg.KeyID = cfg.AlpacaKeyID
		acfg.SecretKey = cfg.AlpacaSecretKey
		client, err := alpaca.NewClient(acfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, wsFeed, nil
	case enum.BrokerCoinbase:
		client, err := coinbase.NewClient(coinbase.Config{
			BaseURL:   cfg.CoinbaseBaseURL,
			APIKey:    cfg.CoinbaseAPIKey,
			APISecret: cfg.CoinbaseAPISecret,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, wsFeed, nil
	default:
		b := paper.NewBroker(cfg.PaperStartingCash)
		router.AddSink(b)
		md, err := coinbase.NewMarketDataClient(coinbase.Config{BaseURL: cfg.CoinbaseBaseURL}, logger)
		if err != nil {
			return nil, nil, err
		}
		poll := func(ctx context.Context) {
			md.PollPrices(ctx, cfg.Symbols, cfg.PricePollInterval, router)
		}
		return b, poll, nil
	}
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.SlackWebhook != "" {
		s, err := notify.NewSlack(cfg.SlackWebhook)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, s)
	}
	if cfg.SNSTopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		n, err := notify.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

// ---------- HANDLERS ----------

type symbolState struct {
	Enabled    bool      `json:"enabled"`
	Phase      string    `json:"phase"`
	InFlight   bool      `json:"in_flight"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastPrice  float64   `json:"last_price,omitempty"`
	LastTickAt time.Time `json:"last_tick_at,omitzero"`
	State      any       `json:"state,omitempty"`
}

type stateResponse struct {
	Symbols      map[string]symbolState `json:"symbols"`
	DroppedTicks uint64                 `json:"dropped_ticks"`
}

func stateHandler(mgr *manager.Manager, prices *signaler.PriceStore, router *manager.TickRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := mgr.Statuses()
		out := stateResponse{Symbols: make(map[string]symbolState), DroppedTicks: router.Dropped()}
		for symbol, enabled := range mgr.Toggles().Snapshot() {
			s := symbolState{Enabled: enabled, Phase: enum.PhaseIdle.String()}
			if st, ok := statuses[symbol]; ok {
				s.Phase = st.State.Phase.String()
				s.InFlight = st.InFlight
				s.LastRun = st.LastRun
				s.State = st.State
			}
			if tick, ok := prices.Latest(symbol); ok {
				s.LastPrice = tick.Price
				s.LastTickAt = tick.Time
			}
			out.Symbols[symbol] = s
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			LoggerFrom(r).Warn("encode state", "error", err)
		}
	}
}

// toggleHandler flips ?symbol=, or sets it when ?enabled= is given.
func toggleHandler(toggles *api_helper.ToggleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}

		var enabled bool
		var err error
		if v := r.URL.Query().Get("enabled"); v != "" {
			enabled, err = strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid enabled", http.StatusBadRequest)
				return
			}
			err = toggles.Set(symbol, enabled)
		} else {
			enabled, err = toggles.Toggle(symbol)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		LoggerFrom(r).Info("symbol toggled", "symbol", symbol, "enabled", enabled)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"symbol": symbol, "enabled": enabled}); err != nil {
			LoggerFrom(r).Warn("encode toggle", "error", err)
		}
	}
}

// eventHistory is the persisted journal. postgres.Sink satisfies it.
type eventHistory interface {
	Recent(ctx context.Context, symbol string, limit int) ([]journal.Event, error)
}

// eventsHandler serves the newest events, newest last. With ?symbol= and a
// persisted journal the events come from the database, newest first.
func eventsHandler(events *journal.Memory, history eventHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			n = parsed
		}
		symbol := r.URL.Query().Get("symbol")

		var out []journal.Event
		switch {
		case symbol != "" && history != nil:
			var err error
			out, err = history.Recent(r.Context(), symbol, n)
			if err != nil {
				LoggerFrom(r).Error("read persisted events", "symbol", symbol, "error", err)
				http.Error(w, "could not read events", http.StatusBadGateway)
				return
			}
		case symbol != "":
			out = lastForSymbol(events.Recent(0), symbol, n)
		default:
			out = events.Recent(n)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			LoggerFrom(r).Warn("encode events", "error", err)
		}
	}
}

func lastForSymbol(events []journal.Event, symbol string, n int) []journal.Event {
	out := make([]journal.Event, 0, n)
	for _, e := range events {
		if e.Symbol == symbol {
			out = append(out, e)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
