// Package locks provides short-lived exclusive leases shared between instances.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = errors.New("lock is held")

// Locker hands out leases on keys.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is an acquired lock. Release is safe to call more than once.
type Lease struct {
	Key   string
	Token string

	once    sync.Once
	release func(ctx context.Context) error
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() { err = l.release(ctx) })
	return err
}

// --- redis ---------------------------------------------------------------------

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis locker. Keys are stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL and returns a locker using it.
func NewRedisFromURL(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), prefix), nil
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	full := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{
		Key:   key,
		Token: token,
		release: func(ctx context.Context) error {
			return releaseScript.Run(ctx, r.client, []string{full}, token).Err()
		},
	}, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// --- memory --------------------------------------------------------------------

type memoryEntry struct {
	token   string
	expires time.Time
}

// Memory implements Locker for a single process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &Lease{
		Key:   key,
		Token: token,
		release: func(context.Context) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.entries[key]; ok && e.token == token {
				delete(m.entries, key)
			}
			return nil
		},
	}, nil
}
