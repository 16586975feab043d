// services/redis_lease.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// compare-and-delete: only the token that set the key may remove it
var releaseLeaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLeaseManager serializes keys across every instance sharing one Redis.
// TTL must outlive the longest critical section, or a second holder can slip in.
type RedisLeaseManager struct {
	client        redis.UniversalClient
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLeaseManager(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisLeaseManager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisLeaseManager{
		client:        client,
		keyPrefix:     keyPrefix,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
	}
}

func (m *RedisLeaseManager) Acquire(ctx context.Context, key string) (Lease, error) {
	lease := &redisLease{
		client: m.client,
		key:    m.keyPrefix + key,
		token:  uuid.NewString(),
	}

	for {
		ok, err := m.client.SetNX(ctx, lease.key, lease.token, m.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLeaseNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lease %s: %w", lease.key, err)
		}
		if ok {
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLeaseNotAcquired, key, ctx.Err())
		case <-time.After(m.retryInterval):
		}
	}
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}
