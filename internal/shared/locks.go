package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another worker owns the lock.
var ErrLockHeld = errors.New("lock already held")

// RunLockKey builds the redis key serialising payment runs of a company on a day.
func RunLockKey(company string, day time.Time) string {
	return fmt.Sprintf("payments:run:%s:%s:lock", company, day.Format(time.DateOnly))
}

// RunIdempotencyKey identifies a completed company run for a day.
func RunIdempotencyKey(company string, day time.Time) string {
	return fmt.Sprintf("%s:%s", company, day.Format(time.DateOnly))
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a redis SET NX lock owned by a random token.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// AcquireLock takes key for ttl or returns ErrLockHeld.
func AcquireLock(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration) (*Lock, error) {
	if client == nil {
		return nil, errors.New("redis client not initialised")
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: client, key: key, token: token}, nil
}

// Release drops the lock when still owned by this holder.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
