package store

import (
	"context"
	"sync"
	"time"
)

const defaultKeyPrefix = "karuna."

// Repository hands out typed collections over one backend. Collections
// obtained from the same Repository share write locks, so at most one
// read-modify-write per name is in flight inside the process.
type Repository struct {
	backend    Store
	prefix     string
	latency    time.Duration
	attempts   int
	onConflict func(name string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithKeyPrefix namespaces every collection name in the backend.
func WithKeyPrefix(prefix string) Option {
	return func(r *Repository) { r.prefix = prefix }
}

// WithLatency delays every collection call, which is handy for exercising
// callers against a slow backend.
func WithLatency(d time.Duration) Option {
	return func(r *Repository) { r.latency = d }
}

// WithMaxAttempts bounds compare-and-swap retries per update.
func WithMaxAttempts(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithConflictHook is called every time a save loses a version race.
func WithConflictHook(fn func(name string)) Option {
	return func(r *Repository) { r.onConflict = fn }
}

// NewRepository wraps backend.
func NewRepository(backend Store, opts ...Option) *Repository {
	r := &Repository{
		backend:  backend,
		prefix:   defaultKeyPrefix,
		attempts: 5,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the underlying store.
func (r *Repository) Backend() Store {
	return r.backend
}

// Key returns the backend key used for name.
func (r *Repository) Key(name string) string {
	return r.prefix + name
}

// Ping checks the backend.
func (r *Repository) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// Close closes the backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

func (r *Repository) lock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

func (r *Repository) pause(ctx context.Context) error {
	if r.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Repository) conflict(name string) {
	if r.onConflict != nil {
		r.onConflict(name)
	}
}
