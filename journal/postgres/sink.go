// Package postgres persists the trade journal to PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/metrics"
)

var _ journal.Recorder = (*Sink)(nil)

type DBConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func DefaultDBConfig(url string) DBConfig {
	return DBConfig{
		URL:             url,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// OpenPool connects and pings. The caller closes the pool.
func OpenPool(ctx context.Context, cfg DBConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// DB is the subset of *pgxpool.Pool the sink uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `CREATE TABLE IF NOT EXISTS trade_event (
	id         BIGSERIAL PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	details    JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS trade_event_symbol_ts_idx ON trade_event (symbol, ts DESC);`

// defaultQueueSize bounds the events waiting for the database writer.
const defaultQueueSize = 1024

// Sink writes trade events from a single background goroutine so a slow
// database never holds up a trade cycle. Close drains what is queued.
type Sink struct {
	db           DB
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan journal.Event
	done   chan struct{}
}

func NewSink(db DB, logger *slog.Logger) (*Sink, error) {
	return newSink(db, logger, defaultQueueSize)
}

func newSink(db DB, logger *slog.Logger, queueSize int) (*Sink, error) {
	if db == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		db:           db,
		logger:       logger.With("component", "journal-postgres"),
		writeTimeout: 5 * time.Second,
		queue:        make(chan journal.Event, queueSize),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create trade_event table: %w", err)
	}
	return nil
}

// Record queues the event for the writer. A full queue or a closed sink
// drops the event with a log line; the trade cycle goes on.
func (s *Sink) Record(_ context.Context, e journal.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("trade event after close, dropping", "type", e.Type, "symbol", e.Symbol)
		metrics.IncJournalDrops()
		return
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("trade event queue full, dropping", "type", e.Type, "symbol", e.Symbol)
		metrics.IncJournalDrops()
	}
}

// Close stops accepting events and waits until the queued ones are written
// or ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("journal writer did not drain: %w", ctx.Err())
	}
}

func (s *Sink) writeLoop() {
	defer close(s.done)
	for e := range s.queue {
		if err := s.Save(context.Background(), e); err != nil {
			s.logger.Error("failed to persist trade event", "type", e.Type, "symbol", e.Symbol, "error", err)
		}
	}
}

func (s *Sink) Save(ctx context.Context, e journal.Event) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	_, err = s.db.Exec(ctx,
		`INSERT INTO trade_event (ts, event_type, symbol, details) VALUES ($1, $2, $3, $4::jsonb)`,
		ts.UTC(), string(e.Type), e.Symbol, string(raw))
	if err != nil {
		return fmt.Errorf("failed to insert trade event: %w", err)
	}
	return nil
}

// Recent returns the newest limit events for symbol, newest first.
func (s *Sink) Recent(ctx context.Context, symbol string, limit int) ([]journal.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT ts, event_type, symbol, details FROM trade_event WHERE symbol = $1 ORDER BY ts DESC, id DESC LIMIT $2`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var (
			e       journal.Event
			typ     string
			details []byte
		)
		if err := rows.Scan(&e.Timestamp, &typ, &e.Symbol, &details); err != nil {
			return nil, fmt.Errorf("failed to scan trade event: %w", err)
		}
		e.Type = journal.EventType(typ)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
