package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/cache"
)

// CacheInvalidator consumes catalog mutation events and drops every cache
// entry whose declared dependencies reference the mutated entity. Failures
// degrade inside the cache and never surface to the mutation.
type CacheInvalidator struct {
	cache  *cache.TieredCache
	logger *zap.Logger
}

// NewCacheInvalidator creates a CacheInvalidator.
func NewCacheInvalidator(tiered *cache.TieredCache, logger *zap.Logger) *CacheInvalidator {
	return &CacheInvalidator{cache: tiered, logger: logger.Named("invalidator")}
}

var _ CatalogObserver = (*CacheInvalidator)(nil)

// OnCatalogMutated implements CatalogObserver.
func (i *CacheInvalidator) OnCatalogMutated(ctx context.Context, m CatalogMutation) {
	i.logger.Debug("Invalidating cache for catalog mutation",
		zap.String("kind", string(m.Kind)),
		zap.Int64("gid", m.GID),
		zap.Int64("entity_id", m.EntityID),
	)

	switch m.Kind {
	case MutationGame:
		i.cache.InvalidatePrefix(ctx, cache.StaticPrefix)
		i.cache.InvalidatePrefix(ctx, fmt.Sprintf("%sevents:%d", cache.DynamicPrefix, m.GID))
		i.cache.InvalidateGame(ctx, m.GID)

	case MutationEvent:
		i.cache.InvalidatePrefix(ctx, fmt.Sprintf("%sevents:%d", cache.DynamicPrefix, m.GID))
		i.cache.InvalidatePrefix(ctx, fmt.Sprintf("%sparams:%d", cache.DynamicPrefix, m.EntityID))
		i.cache.InvalidateEvent(ctx, m.EntityID)
		i.cache.InvalidateGame(ctx, m.GID)

	case MutationParameter:
		// EntityID is the owning event id for parameter mutations.
		i.cache.InvalidatePrefix(ctx, fmt.Sprintf("%sparams:%d", cache.DynamicPrefix, m.EntityID))
		i.cache.InvalidateEvent(ctx, m.EntityID)

	case MutationFlow:
		// Saved flows are not cached; nothing to drop.
	}
}
