/*
Package store implements the persistence shim: a small key-value contract used to
remember the logged-in identity across restarts, with memory, Pebble and PostgreSQL
backends.
*/
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatclient/internal/app/user"
)

// UserKey is the key under which the current user is persisted.
const UserKey = "chatUser"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
)

// KV is the persistence shim contract.
type KV interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	Path        string
	DatabaseDSN string
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPebble:
		return OpenPebble(cfg.Path)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// LoadUser restores the persisted identity. ok is false when none is stored.
func LoadUser(ctx context.Context, kv KV) (u user.User, ok bool, err error) {
	raw, err := kv.Get(ctx, UserKey)
	if errors.Is(err, ErrNotFound) {
		return user.User{}, false, nil
	}
	if err != nil {
		return user.User{}, false, fmt.Errorf("load %s: %w", UserKey, err)
	}

	// a stored JSON null is treated as no identity
	if string(raw) == "null" {
		return user.User{}, false, nil
	}

	if err := json.Unmarshal(raw, &u); err != nil {
		return user.User{}, false, fmt.Errorf("decode %s: %w", UserKey, err)
	}

	if u.ID == "" {
		return user.User{}, false, nil
	}

	return u, true, nil
}

// SaveUser persists u as the current identity.
func SaveUser(ctx context.Context, kv KV, u user.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode %s: %w", UserKey, err)
	}

	if err := kv.Set(ctx, UserKey, raw); err != nil {
		return fmt.Errorf("save %s: %w", UserKey, err)
	}

	return nil
}

// ForgetUser removes the persisted identity.
func ForgetUser(ctx context.Context, kv KV) error {
	if err := kv.Delete(ctx, UserKey); err != nil {
		return fmt.Errorf("forget %s: %w", UserKey, err)
	}
	return nil
}
