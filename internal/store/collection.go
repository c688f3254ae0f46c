package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection is a typed view of one named collection.
type Collection[T any] struct {
	repo *Repository
	name string
}

// For returns the collection called name holding records of type T.
func For[T any](repo *Repository, name string) *Collection[T] {
	return &Collection[T]{repo: repo, name: name}
}

// Name returns the unprefixed collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// All returns every record. An absent collection reads as empty.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	if err := c.repo.pause(ctx); err != nil {
		return nil, err
	}
	items, _, err := c.load(ctx)
	return items, err
}

// Exists reports whether the collection has ever been saved.
func (c *Collection[T]) Exists(ctx context.Context) (bool, error) {
	_, _, err := c.repo.backend.Load(ctx, c.repo.Key(c.name))
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", c.name, err)
	}
	return true, nil
}

// Update runs fn against the current records and saves what it returns.
//
// Updates to the same collection are serialized in-process and guarded by a
// version check against the backend; on a lost race fn runs again against
// fresh records. If fn returns an error nothing is written. fn must not
// keep references to the slice it receives across calls.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) ([]T, error) {
	if err := c.repo.pause(ctx); err != nil {
		return nil, err
	}

	l := c.repo.lock(c.name)
	l.Lock()
	defer l.Unlock()

	for attempt := 0; attempt < c.repo.attempts; attempt++ {
		items, version, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.name, err)
		}

		_, err = c.repo.backend.Save(ctx, c.repo.Key(c.name), payload, version)
		if errors.Is(err, ErrVersionConflict) {
			c.repo.conflict(c.name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", c.name, err)
		}
		return next, nil
	}

	return nil, fmt.Errorf("save %s after %d attempts: %w", c.name, c.repo.attempts, ErrVersionConflict)
}

// Seed saves items only if the collection has never been saved. It reports
// whether it wrote anything.
func (c *Collection[T]) Seed(ctx context.Context, items []T) (bool, error) {
	l := c.repo.lock(c.name)
	l.Lock()
	defer l.Unlock()

	_, version, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	if version != 0 {
		return false, nil
	}
	if items == nil {
		items = []T{}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", c.name, err)
	}
	if _, err := c.repo.backend.Save(ctx, c.repo.Key(c.name), payload, 0); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Seeded concurrently by another process.
			return false, nil
		}
		return false, fmt.Errorf("seed %s: %w", c.name, err)
	}
	return true, nil
}

func (c *Collection[T]) load(ctx context.Context) ([]T, int64, error) {
	payload, version, err := c.repo.backend.Load(ctx, c.repo.Key(c.name))
	if errors.Is(err, ErrCollectionNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", c.name, err)
	}

	var items []T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrCorruptCollection, c.name, err)
		}
	}
	return items, version, nil
}
