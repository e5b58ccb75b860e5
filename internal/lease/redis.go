package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker takes leases with SET NX PX and releases them only while the
// stored token still matches.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: prefix,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrNotConfigured
	}
	if err := validate(name, ttl); err != nil {
		return nil, err
	}

	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &heldLease{
		name:  name,
		token: token,
		release: func(ctx context.Context) error {
			return l.script.Run(ctx, l.client, []string{key}, token).Err()
		},
	}, nil
}
