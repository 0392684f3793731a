package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/pii"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// fakeRedis implements the command subset the vault issues, over a plain
// map. Knobs force collisions and transport failures.
type fakeRedis struct {
	data       map[string]string
	collisions int
	failWrites bool
	failReads  bool
	lastTTL    time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.failWrites {
		return redis.NewBoolResult(false, errors.New("connection refused"))
	}
	if f.collisions > 0 {
		f.collisions--
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.lastTTL = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failReads {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.failWrites {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.data[key] = fmt.Sprint(value)
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	return nil
}

func newTestVault(f *fakeRedis) *RedisVault {
	return &RedisVault{
		client:    f,
		ttl:       time.Hour,
		statusTTL: 24 * time.Hour,
		logger:    zap.NewNop(),
	}
}

// === placeholder store ===

func TestRedisVault_StoreParksOriginal(t *testing.T) {
	f := newFakeRedis()
	v := newTestVault(f)

	placeholder, err := v.Store(context.Background(), "peter@example.com", "EMAIL")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !pii.IsPlaceholder(placeholder) {
		t.Fatalf("minted %q, not a well-formed placeholder", placeholder)
	}
	if !strings.HasPrefix(placeholder, "<EMAIL_") {
		t.Fatalf("placeholder %q does not carry the label", placeholder)
	}
	if got := f.data[placeholder]; got != "peter@example.com" {
		t.Fatalf("stored %q under %q", got, placeholder)
	}
	if f.lastTTL != time.Hour {
		t.Fatalf("ttl = %v, want 1h", f.lastTTL)
	}
}

func TestRedisVault_StoreRetriesCollisions(t *testing.T) {
	f := newFakeRedis()
	f.collisions = storeAttempts - 1
	v := newTestVault(f)

	placeholder, err := v.Store(context.Background(), "0151 12345678", "PHONE")
	if err != nil {
		t.Fatalf("Store should survive %d collisions: %v", storeAttempts-1, err)
	}
	if f.data[placeholder] != "0151 12345678" {
		t.Fatal("final attempt did not store the original")
	}
}

func TestRedisVault_StoreGivesUpAfterRetries(t *testing.T) {
	f := newFakeRedis()
	f.collisions = storeAttempts
	v := newTestVault(f)

	_, err := v.Store(context.Background(), "x", "EMAIL")
	if !domainErrors.IsStoreUnavailable(err) {
		t.Fatalf("err = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestRedisVault_StoreWriteFailure(t *testing.T) {
	f := newFakeRedis()
	f.failWrites = true
	v := newTestVault(f)

	_, err := v.Store(context.Background(), "x", "EMAIL")
	if !domainErrors.IsStoreUnavailable(err) {
		t.Fatalf("err = %v, want STORE_UNAVAILABLE", err)
	}
}

// === resolve ===

func TestRedisVault_Resolve(t *testing.T) {
	f := newFakeRedis()
	v := newTestVault(f)

	placeholder, err := v.Store(context.Background(), "Peter Lustig", "PERSON")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if got := v.Resolve(context.Background(), placeholder); got != "Peter Lustig" {
		t.Errorf("hit resolved to %q", got)
	}
	if got := v.Resolve(context.Background(), "<PERSON_deadbeef>"); got != "<PERSON_deadbeef>" {
		t.Errorf("miss resolved to %q, want passthrough", got)
	}

	f.failReads = true
	if got := v.Resolve(context.Background(), placeholder); got != placeholder {
		t.Errorf("read failure resolved to %q, want passthrough", got)
	}
}

// === session mode ===

func TestRedisVault_ModeDefaultsToAI(t *testing.T) {
	v := newTestVault(newFakeRedis())

	mode, err := v.Mode(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode != entity.ModeAI {
		t.Fatalf("mode = %v, want AI for an absent key", mode)
	}
}

func TestRedisVault_ModeRoundTrip(t *testing.T) {
	f := newFakeRedis()
	v := newTestVault(f)

	if err := v.SetMode(context.Background(), "sess_1", entity.ModeHuman); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if got := f.data["status:sess_1"]; got != "HUMAN" {
		t.Fatalf("stored status %q", got)
	}
	if f.lastTTL != 24*time.Hour {
		t.Fatalf("status ttl = %v, want 24h", f.lastTTL)
	}

	mode, err := v.Mode(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode != entity.ModeHuman {
		t.Fatalf("mode = %v, want HUMAN", mode)
	}
}

func TestRedisVault_ModeReadFailureSurfaces(t *testing.T) {
	f := newFakeRedis()
	f.failReads = true
	v := newTestVault(f)

	_, err := v.Mode(context.Background(), "sess_1")
	if !domainErrors.IsStoreUnavailable(err) {
		t.Fatalf("err = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestRedisVault_SetModeWriteFailure(t *testing.T) {
	f := newFakeRedis()
	f.failWrites = true
	v := newTestVault(f)

	err := v.SetMode(context.Background(), "sess_1", entity.ModeHuman)
	if !domainErrors.IsStoreUnavailable(err) {
		t.Fatalf("err = %v, want STORE_UNAVAILABLE", err)
	}
}
