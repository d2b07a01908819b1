package redislock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements SETNX and the compare-and-delete script in memory.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) release(keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args...)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	l, err := New(newFakeRedis(), Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.cfg.TTL != ConfigDefaults().TTL || l.key("BTC/USD") != "borb:lock:BTC/USD" {
		t.Errorf("defaults not applied: %+v", l.cfg)
	}
	if _, _, err := NewFromAddr("", "", Config{}, nil); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestTryLock_ExclusiveUntilReleased(t *testing.T) {
	fake := newFakeRedis()
	a, _ := New(fake, Config{}, nil)
	b, _ := New(fake, Config{}, nil)
	ctx := context.Background()

	unlock, ok, err := a.TryLock(ctx, "BTC/USD")
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}
	if _, ok, _ := b.TryLock(ctx, "BTC/USD"); ok {
		t.Fatal("second holder acquired a held lock")
	}
	if _, ok, _ := b.TryLock(ctx, "ETH/USD"); !ok {
		t.Fatal("locks must be per symbol")
	}

	unlock()
	if _, ok, _ := b.TryLock(ctx, "BTC/USD"); !ok {
		t.Fatal("lock was not released")
	}
}

func TestUnlock_DoesNotStealAnotherHoldersLease(t *testing.T) {
	fake := newFakeRedis()
	l, _ := New(fake, Config{}, nil)
	ctx := context.Background()

	unlock, _, _ := l.TryLock(ctx, "SOL/USD")
	// lease expired and someone else took it
	fake.data["borb:lock:SOL/USD"] = "other"
	unlock()
	if fake.data["borb:lock:SOL/USD"] != "other" {
		t.Error("unlock deleted a lease it did not own")
	}
}

func TestTryLock_Error(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	l, _ := New(fake, Config{}, nil)
	if _, ok, err := l.TryLock(context.Background(), "BTC/USD"); err == nil || ok {
		t.Fatalf("expected error, got ok=%v err=%v", ok, err)
	}
}
