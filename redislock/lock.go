// Package redislock guards a symbol across processes with a Redis
// SET NX PX lease.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis client the locker needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

type Config struct {
	// TTL bounds how long a crashed holder can keep a symbol locked.
	TTL       time.Duration
	KeyPrefix string
}

func ConfigDefaults() Config {
	return Config{TTL: 5 * time.Minute, KeyPrefix: "borb:lock"}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

type Locker struct {
	client Client
	cfg    Config
	logger *slog.Logger
}

func New(client Client, cfg Config, logger *slog.Logger) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	defaults := ConfigDefaults()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: client, cfg: cfg, logger: logger.With("component", "redislock")}, nil
}

// NewFromAddr dials a standalone Redis.
func NewFromAddr(addr, password string, cfg Config, logger *slog.Logger) (*Locker, *redis.Client, error) {
	if addr == "" {
		return nil, nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	l, err := New(client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return l, client, nil
}

func (l *Locker) key(symbol string) string {
	return l.cfg.KeyPrefix + ":" + symbol
}

// TryLock takes the lease for symbol without waiting. When acquired is false
// another process holds it. The returned unlock only deletes the key if this
// holder still owns it.
func (l *Locker) TryLock(ctx context.Context, symbol string) (unlock func(), acquired bool, err error) {
	key := l.key(symbol)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}
	return unlock, true, nil
}
