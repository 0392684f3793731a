// Package vault backs the PII placeholder store and the session status map
// with redis. TTLs do the forgetting: placeholders live one hour, a HUMAN
// status entry one day, and nothing is ever deleted explicitly.
package vault

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/pii"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

const statusPrefix = "status:"

// storeAttempts bounds the collision retry loop. 8 hex chars leave a 2^32
// space per label, so a second attempt is already exceptional.
const storeAttempts = 3

// commands is the slice of the redis API the vault actually issues.
// Narrowed for tests.
type commands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisVault implements pii.Vault and service.SessionState on one client.
type RedisVault struct {
	client    commands
	ttl       time.Duration
	statusTTL time.Duration
	logger    *zap.Logger
}

// Options configures the redis connection and entry lifetimes.
type Options struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	StatusTTL time.Duration
}

// NewRedisVault creates the vault. Connection establishment is lazy; call
// Ping during startup to fail fast on a bad address.
func NewRedisVault(opts Options, logger *zap.Logger) *RedisVault {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisVault{
		client:    client,
		ttl:       opts.TTL,
		statusTTL: opts.StatusTTL,
		logger:    logger,
	}
}

// Ping verifies the connection.
func (v *RedisVault) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

// Close releases the client.
func (v *RedisVault) Close() error {
	return v.client.Close()
}

// Store parks original under a fresh placeholder. SETNX guards against the
// unlikely case that a minted placeholder is still live.
func (v *RedisVault) Store(ctx context.Context, original, label string) (string, error) {
	for attempt := 0; attempt < storeAttempts; attempt++ {
		placeholder := pii.MintPlaceholder(label)
		ok, err := v.client.SetNX(ctx, placeholder, original, v.ttl).Result()
		if err != nil {
			return "", domainErrors.NewStoreUnavailableError("vault write failed", err)
		}
		if ok {
			return placeholder, nil
		}
		v.logger.Warn("Placeholder collision, minting again",
			zap.String("placeholder", placeholder),
			zap.Int("attempt", attempt+1),
		)
	}
	return "", domainErrors.NewStoreUnavailableError("placeholder collisions exhausted retries", nil)
}

// Resolve returns the original behind placeholder. Misses and read errors
// both pass the placeholder through; the stream must not die on a lookup.
func (v *RedisVault) Resolve(ctx context.Context, placeholder string) string {
	val, err := v.client.Get(ctx, placeholder).Result()
	if err == redis.Nil {
		return placeholder
	}
	if err != nil {
		v.logger.Warn("Vault read failed, passing placeholder through",
			zap.String("placeholder", placeholder),
			zap.Error(err),
		)
		return placeholder
	}
	return val
}

// Mode reads the session's answering mode. An absent key means AI; a read
// error is surfaced so the router can fail the turn instead of guessing.
func (v *RedisVault) Mode(ctx context.Context, sessionID string) (entity.SessionMode, error) {
	val, err := v.client.Get(ctx, statusPrefix+sessionID).Result()
	if err == redis.Nil {
		return entity.ModeAI, nil
	}
	if err != nil {
		return entity.ModeAI, domainErrors.NewStoreUnavailableError("status read failed", err)
	}
	return entity.ParseMode(val), nil
}

// SetMode writes the session's answering mode with the status TTL, so a
// forgotten HUMAN handover falls back to AI after a day.
func (v *RedisVault) SetMode(ctx context.Context, sessionID string, mode entity.SessionMode) error {
	err := v.client.Set(ctx, statusPrefix+sessionID, string(mode), v.statusTTL).Err()
	if err != nil {
		return domainErrors.NewStoreUnavailableError("status write failed", err)
	}
	return nil
}
