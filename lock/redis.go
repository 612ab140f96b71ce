// Package lock provides the run-level guard that keeps overlapping scheduler triggers from billing twice
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
)

// ErrHeld is returned when another holder owns the lock
var ErrHeld = errors.New("lock is held by another run")

// release only deletes the key while we still own it
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a SET NX based mutex with a TTL so a crashed holder cannot wedge the batch forever
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("nil redisClient is invalid")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("non-positive ttl is invalid")
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Acquire takes the lock named key. The returned function releases it.
// go-redis/v7 UniversalClient carries no per-call context, ctx is accepted for the RunLock contract
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.New().String()
	ok, err := r.client.SetNX(name, token, r.ttl).Result()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot acquire lock")
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		releaseScript.Run(r.client, []string{name}, token)
	}, nil
}
