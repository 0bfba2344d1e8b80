// Package kv provides the ephemeral TTL key-value store backing presence
// and stream bookkeeping. Entries expire lazily at read time; absence of a
// key is the only offline signal. The KV is never authoritative for
// durability.
package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
)

// KV is a flat keyspace with per-key TTLs.
type KV interface {
	// Put stores value under key, replacing any prior entry. A zero ttl
	// stores the key without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value and true when the key exists and is unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// Keys lists unexpired keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Open constructs a KV from its connection string. Only the in-process
// driver ("memory://") is supported.
func Open(dsn string) (KV, error) {
	if dsn == "" || strings.HasPrefix(dsn, "memory://") {
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported KV DSN %q: %w", dsn, model.ErrUnavailable)
}
