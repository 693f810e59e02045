// Package flow implements the per-flow context store.
package flow

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/metrics"
)

const defaultCleanupInterval = 30 * time.Second

// Config configures the context store.
type Config struct {
	TTL             time.Duration // Idle lifetime of a context (default 120s)
	CleanupInterval time.Duration // Janitor period (default 30s, negative disables)
}

// Store is a core.ContextStore backed by go-cache. Contexts are keyed by the
// canonical flow key, so both directions share one context. Expired contexts
// are closed, which abandons any reassembly they hold.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore creates a context store.
func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = core.DefaultContextTTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}

	s := &Store{
		cache: cache.New(cfg.TTL, cfg.CleanupInterval),
		ttl:   cfg.TTL,
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

// GetOrCreate returns the live context for key, creating one if absent.
// Concurrent callers racing on creation all get the same context.
func (s *Store) GetOrCreate(key core.FlowKey) *core.Context {
	k := key.Canonical()
	if v, ok := s.cache.Get(k); ok {
		return v.(*core.Context)
	}

	c := core.NewContext(key)
	if err := s.cache.Add(k, c, s.ttl); err != nil {
		if v, ok := s.cache.Get(k); ok {
			return v.(*core.Context)
		}
		// Expired between Add and Get.
		s.cache.Set(k, c, s.ttl)
	}
	metrics.ContextsActive.Inc()
	return c
}

// SetTTL pushes the expiry of c to now + ttl. A context that has already
// been replaced in the store is left alone.
func (s *Store) SetTTL(c *core.Context, ttl time.Duration) {
	k := c.Key.Canonical()
	if v, ok := s.cache.Get(k); ok && v == c {
		s.cache.Set(k, c, ttl)
	}
}

// Len returns the number of contexts held, including expired ones the
// janitor has not swept yet.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Sweep expires contexts now instead of waiting for the janitor.
func (s *Store) Sweep() {
	s.cache.DeleteExpired()
}

// Close drops every context, live or expired.
func (s *Store) Close() {
	s.cache.DeleteExpired()
	for k := range s.cache.Items() {
		s.cache.Delete(k)
	}
}

func (s *Store) evicted(key string, v any) {
	c, ok := v.(*core.Context)
	if !ok {
		return
	}
	c.Close()
	metrics.ContextsActive.Dec()
	slog.Debug("flow context expired", "flow", key)
}
