// Package metacache stores computed node metadata outside the process, so
// repeated invocations against an unchanged repository skip the reactor
// passes.
package metacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/convergo/internal/metadata"
)

// Cache stores effective metadata by key.
type Cache interface {
	// Get returns the cached metadata for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (metadata.Map, bool, error)
	Set(ctx context.Context, key string, m metadata.Map) error
}

// Key derives the cache key of one node's computation. Any change to the
// repository revision, the repository snapshot digest, the node's static
// metadata or its reactor set yields a different key. The snapshot covers
// what reactors may read besides the node's own metadata; compiled-in
// reactor code is covered only by revision.
func Key(revision, snapshot, node string, static metadata.Map, reactors []string) (string, error) {
	_, value, err := metadata.Marshal(static)
	if err != nil {
		return "", fmt.Errorf("encoding static metadata of %s: %w", node, err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", revision, snapshot, node)
	h.Write(value)
	for _, name := range reactors {
		fmt.Fprintf(h, "\x00%s", name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (metadata.Map, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, metadata.Map) error         { return nil }

type memoryEntry struct {
	value   metadata.Map
	expires time.Time
}

// Memory is an in-process Cache. Entries expire after ttl; zero keeps them
// forever.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-process cache.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *Memory) Get(ctx context.Context, key string) (metadata.Map, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value.Clone(), true, nil
}

func (c *Memory) Set(ctx context.Context, key string, m metadata.Map) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: m.Clone()}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// Clear drops every entry.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryEntry{}
}
