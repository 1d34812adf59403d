// Package lease provides per-entity leases so a batch pass runs with a
// single writer per circle/goal even when multiple worker instances overlap.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Locker interface {
	// Acquire takes the lease for key, returning false when another holder
	// has it. Leases expire after ttl regardless of release.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SET NX PX. Release only deletes the key
// when this instance still owns it.
type RedisLocker struct {
	client *redis.Client
	owner  string
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		owner:  uuid.New().String(),
		logger: logger,
	}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, "lease:"+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{"lease:" + key}, l.owner).Err(); err != nil && err != redis.Nil {
		if l.logger != nil {
			l.logger.Warn("lease release failed", zap.String("key", key), zap.Error(err))
		}
		return err
	}
	return nil
}

// NopLocker always grants the lease; used when Redis is not configured
// (single-instance deployments) and in tests.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NopLocker) Release(context.Context, string) error                        { return nil }
