// Package store persists whole named collections of records and serializes
// read-modify-write cycles on them.
//
// A backend only knows how to load and replace a JSON payload under a name,
// guarded by a version number. Collection adds typed decoding, a per-name
// write lock and compare-and-swap retries on top.
package store

import (
	"context"
	"errors"
)

// Collection names.
const (
	Users       = "users"
	Credentials = "credentials"
	Posts       = "posts"
	Connections = "connections"
	Messages    = "messages"
	Gratitude   = "gratitude"
	Reports     = "reports"
)

// Names lists every collection the core persists.
var Names = []string{Users, Credentials, Posts, Connections, Messages, Gratitude, Reports}

var (
	// ErrCollectionNotFound is returned by Load when nothing was ever saved
	// under the name.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrVersionConflict is returned by Save when the stored version no
	// longer matches the expected one.
	ErrVersionConflict = errors.New("collection version conflict")
	// ErrCorruptCollection wraps payloads that cannot be decoded.
	ErrCorruptCollection = errors.New("corrupt collection payload")
)

// Store is a durable key-to-collection backend.
//
// Save with expected == 0 only succeeds when the name is absent. Every
// successful Save returns the new version, which is always expected+1.
type Store interface {
	Load(ctx context.Context, name string) (payload []byte, version int64, err error)
	Save(ctx context.Context, name string, payload []byte, expected int64) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
