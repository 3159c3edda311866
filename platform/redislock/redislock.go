// Package redislock provides a minimal Redis-backed distributed lock.
// This is part of the platform layer and contains no business logic.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is held by another owner.
var ErrNotAcquired = errors.New("redislock: not acquired")

// releaseScript deletes the key only if this owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only if this owner still holds the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a single named lock instance. A Lock is owned by the value written
// at acquisition, so releasing a lock another process re-acquired is a no-op.
type Lock struct {
	rdb   *redis.Client
	key   string
	owner string
	ttl   time.Duration
}

// New creates a lock handle for the given key. The lock is not acquired yet.
func New(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   key,
		owner: newOwnerToken(),
		ttl:   ttl,
	}
}

// Acquire takes the lock. Returns ErrNotAcquired if it is already held.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Release frees the lock if this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}

// Extend refreshes the lock TTL if this instance still owns it.
// Returns ErrNotAcquired if ownership was lost.
func (l *Lock) Extend(ctx context.Context) error {
	res, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotAcquired
	}
	return nil
}

func newOwnerToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
