package storage

import (
	"time"

	"github.com/eternalApril/moonkv/internal/resp"
)

type SetOptions struct {
	TTL    time.Duration // key lifetime, only used when HasTTL is set
	HasTTL bool          // schedule expiry TTL from now. A zero TTL expires the key immediately
}

// UpdateFunc computes the next value of a key from its current one. exists is
// false when the key is missing or expired. Returning an error leaves the key untouched
type UpdateFunc func(current resp.Value, exists bool) (resp.Value, error)

// Storage is a common interface for working with key-value storages.
// Every method is atomic with respect to all others
type Storage interface {
	// Get returns a copy of the value and true if the key is found and not expired
	Get(key string) (resp.Value, bool)

	// Set writes the value, replacing any previous value and expiry
	Set(key string, value resp.Value, options SetOptions)

	// Delete deletes the key. Returns true if the key existed and was deleted
	Delete(key string) bool

	// Update atomically replaces the value of key with the result of fn.
	// The key keeps its pending expiry
	Update(key string, fn UpdateFunc) (resp.Value, error)

	// Len returns the number of stored entries, including expired ones not yet collected
	Len() int

	// Close stops background expiration
	Close()
}
