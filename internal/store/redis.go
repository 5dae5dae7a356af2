package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/webhookbot/internal/domain"
)

// Compile-time check that RedisLedger implements Ledger.
var _ Ledger = (*RedisLedger)(nil)

// RedisConfig holds Redis ledger configuration.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// Window is how long a reservation blocks duplicates
	Window time.Duration
	// KeyPrefix is prepended to all ledger keys
	KeyPrefix string
}

// RedisConfigDefaults returns defaults for a local Redis.
func RedisConfigDefaults() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Window:    60 * time.Second,
		KeyPrefix: "webhookbot",
	}
}

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger shares the ledger between several relay instances. Expiry is
// enforced by Redis key TTLs, so the at argument of Reserve is not used.
type RedisLedger struct {
	client    *redis.Client
	window    time.Duration
	keyPrefix string
	logger    *logrus.Entry
}

// NewRedisLedger creates a Redis-backed ledger. It does not dial; use Ping.
func NewRedisLedger(cfg RedisConfig, logger *logrus.Logger) (*RedisLedger, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("redis ledger window must be positive")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisLedger{
		client:    client,
		window:    cfg.Window,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.WithField("component", "redis-ledger"),
	}, nil
}

// Ping checks the Redis connection.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// key generates a ledger key in the format prefix:signal:SYMBOL:SIDE:QTY
func (l *RedisLedger) key(fp domain.Fingerprint) string {
	return l.keyPrefix + ":signal:" + fp.Key()
}

// Reserve relies on SET NX PX for an atomic insert-if-absent.
func (l *RedisLedger) Reserve(ctx context.Context, fp domain.Fingerprint, _ time.Time) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(fp), token, l.window).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: reserve %s: %v", domain.ErrLedgerUnavailable, fp.Key(), err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the key only while it still holds token.
func (l *RedisLedger) Release(ctx context.Context, fp domain.Fingerprint, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key(fp)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.WithError(err).WithField("key", fp.Key()).Warn("failed to release ledger reservation")
		return fmt.Errorf("%w: release %s: %v", domain.ErrLedgerUnavailable, fp.Key(), err)
	}
	return nil
}
