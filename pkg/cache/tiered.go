// Package cache implements the request fingerprint cache: a bounded
// in-process LRU in front of a shared store, keyed by SHA-256 fingerprints
// and invalidated by catalog mutations.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Class partitions entries by data volatility; each class carries its own TTL.
type Class string

const (
	ClassStatic  Class = "static"  // catalog-lookup caches: games, categories
	ClassDynamic Class = "dynamic" // per-event and per-parameter lists
	ClassHQL     Class = "hql"     // compiled artifacts
)

// Config holds cache sizing and per-class TTLs.
type Config struct {
	L1Capacity int
	StaticTTL  time.Duration
	DynamicTTL time.Duration
	HQLTTL     time.Duration
}

// DefaultConfig mirrors the documented TTL policy: one hour for static
// catalog data, five minutes for dynamic lists and compiled artifacts.
func DefaultConfig() Config {
	return Config{
		L1Capacity: 512,
		StaticTTL:  time.Hour,
		DynamicTTL: 5 * time.Minute,
		HQLTTL:     5 * time.Minute,
	}
}

func (c Config) ttl(class Class) time.Duration {
	switch class {
	case ClassStatic:
		return c.StaticTTL
	case ClassDynamic:
		return c.DynamicTTL
	default:
		return c.HQLTTL
	}
}

// Deps declares which catalog entities an entry depends on. Invalidation is
// driven by this data, never inferred from call sites.
type Deps struct {
	GIDs     []int64 `json:"gids,omitempty"`
	EventIDs []int64 `json:"event_ids,omitempty"`
}

func (d Deps) hasGID(gid int64) bool {
	for _, g := range d.GIDs {
		if g == gid {
			return true
		}
	}
	return false
}

func (d Deps) hasEvent(eventID int64) bool {
	for _, e := range d.EventIDs {
		if e == eventID {
			return true
		}
	}
	return false
}

// envelope is the L2 wire form of an entry.
type envelope struct {
	Value     []byte    `json:"value"`
	Class     Class     `json:"class"`
	Deps      Deps      `json:"deps"`
	CreatedAt time.Time `json:"created_at"`
}

type l1Entry struct {
	value     []byte
	deps      Deps
	expiresAt time.Time
}

// TieredCache is a two-level cache: a small in-process LRU backed by a
// shared store. A nil store degrades to L1-only; store failures are swallowed
// after a metric increment.
type TieredCache struct {
	l1      *lru.Cache[string, l1Entry]
	l2      Store
	cfg     Config
	logger  *zap.Logger
	metrics *metrics
}

// New creates a tiered cache. l2 may be nil.
func New(cfg Config, l2 Store, logger *zap.Logger, reg prometheus.Registerer) (*TieredCache, error) {
	if cfg.L1Capacity <= 0 {
		cfg.L1Capacity = DefaultConfig().L1Capacity
	}

	m := newMetrics(reg)
	l1, err := lru.NewWithEvict(cfg.L1Capacity, func(string, l1Entry) {
		m.evictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &TieredCache{
		l1:      l1,
		l2:      l2,
		cfg:     cfg,
		logger:  logger.Named("cache"),
		metrics: m,
	}, nil
}

// Get looks a key up in L1 then L2, promoting L2 hits into L1.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.metrics.recordAccess(key)

	if entry, ok := c.l1.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			c.metrics.hits.WithLabelValues("l1").Inc()
			return entry.value, true
		}
		c.l1.Remove(key)
	}

	if c.l2 != nil {
		raw, ok, err := c.l2.Get(ctx, key)
		if err != nil {
			c.l2Degraded("get", key, err)
		} else if ok {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				c.logger.Warn("Discarding undecodable L2 entry", zap.String("key", key), zap.Error(err))
			} else {
				c.metrics.hits.WithLabelValues("l2").Inc()
				c.l1.Add(key, l1Entry{
					value:     env.Value,
					deps:      env.Deps,
					expiresAt: time.Now().Add(c.cfg.ttl(env.Class)),
				})
				return env.Value, true
			}
		}
	}

	c.metrics.misses.Inc()
	return nil, false
}

// Set stores a value in both tiers and records its invalidation dependencies.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, class Class, deps Deps) {
	ttl := c.cfg.ttl(class)
	c.l1.Add(key, l1Entry{value: value, deps: deps, expiresAt: time.Now().Add(ttl)})

	if c.l2 == nil {
		return
	}

	raw, err := json.Marshal(envelope{Value: value, Class: class, Deps: deps, CreatedAt: time.Now().UTC()})
	if err != nil {
		c.logger.Warn("Failed to encode cache envelope", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.l2.Set(ctx, key, raw, ttl); err != nil {
		c.l2Degraded("set", key, err)
		return
	}

	for _, gid := range deps.GIDs {
		if err := c.l2.AddToSet(ctx, gidIndexKey(gid), key); err != nil {
			c.l2Degraded("index", key, err)
		}
	}
	for _, eventID := range deps.EventIDs {
		if err := c.l2.AddToSet(ctx, eventIndexKey(eventID), key); err != nil {
			c.l2Degraded("index", key, err)
		}
	}
}

// GetOrCompute returns the cached value for key, or runs compute once and
// stores the result. The second return reports whether the value was cached.
func (c *TieredCache) GetOrCompute(ctx context.Context, key string, class Class, deps Deps, compute func() ([]byte, error)) ([]byte, bool, error) {
	if val, ok := c.Get(ctx, key); ok {
		return val, true, nil
	}
	val, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.Set(ctx, key, val, class, deps)
	return val, false, nil
}

// InvalidateGame drops every entry whose declared dependencies reference gid.
func (c *TieredCache) InvalidateGame(ctx context.Context, gid int64) {
	c.invalidateDeps(ctx, gidIndexKey(gid), func(d Deps) bool { return d.hasGID(gid) })
}

// InvalidateEvent drops every entry whose declared dependencies reference
// the event.
func (c *TieredCache) InvalidateEvent(ctx context.Context, eventID int64) {
	c.invalidateDeps(ctx, eventIndexKey(eventID), func(d Deps) bool { return d.hasEvent(eventID) })
}

// InvalidatePrefix wipes both tiers by key prefix.
func (c *TieredCache) InvalidatePrefix(ctx context.Context, prefix string) {
	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Remove(key)
			c.metrics.forgetKeys(key)
		}
	}

	if c.l2 == nil {
		return
	}
	keys, err := c.l2.Keys(ctx, prefix)
	if err != nil {
		c.l2Degraded("scan", prefix, err)
		return
	}
	if err := c.l2.Delete(ctx, keys...); err != nil {
		c.l2Degraded("delete", prefix, err)
	}
}

// AccessCount reports how many lookups a key has seen. Exposed for tests and
// operational introspection.
func (c *TieredCache) AccessCount(key string) int64 {
	return c.metrics.AccessCount(key)
}

func (c *TieredCache) invalidateDeps(ctx context.Context, indexKey string, matches func(Deps) bool) {
	for _, key := range c.l1.Keys() {
		if entry, ok := c.l1.Peek(key); ok && matches(entry.deps) {
			c.l1.Remove(key)
			c.metrics.forgetKeys(key)
		}
	}

	if c.l2 == nil {
		return
	}
	members, err := c.l2.SetMembers(ctx, indexKey)
	if err != nil {
		c.l2Degraded("smembers", indexKey, err)
		return
	}
	if err := c.l2.Delete(ctx, append(members, indexKey)...); err != nil {
		c.l2Degraded("delete", indexKey, err)
		return
	}
	// Entries promoted into L1 from another process's write still need to go.
	for _, key := range members {
		c.l1.Remove(key)
		c.metrics.forgetKeys(key)
	}
}

// l2Degraded logs a shared-store failure and counts it. The failure never
// propagates; the cache keeps serving from L1.
func (c *TieredCache) l2Degraded(op, key string, err error) {
	c.metrics.l2Errors.Inc()
	c.logger.Warn("Shared cache store unavailable, degrading to L1",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func gidIndexKey(gid int64) string {
	return fmt.Sprintf("%sidx:gid:%d", Namespace, gid)
}

func eventIndexKey(eventID int64) string {
	return fmt.Sprintf("%sidx:event:%d", Namespace, eventID)
}
