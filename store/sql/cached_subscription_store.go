package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhooks/core"
)

const subscriptionCacheKeyPrefix = "go-webhooks::subscriptions::v1"

// SubscriptionPersistence is the full read/write surface of the backing
// subscription store.
type SubscriptionPersistence interface {
	core.SubscriptionStore
	Save(ctx context.Context, subscription core.Subscription) (core.Subscription, error)
	Deactivate(ctx context.Context, id string) error
}

// CachedSubscriptionStore is a read-through decorator over the subscription
// store. Every fan-out reads the active set, so this is the hot path; writes
// go to the base store and invalidate the affected keys.
type CachedSubscriptionStore struct {
	base  SubscriptionPersistence
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base SubscriptionPersistence,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key for subscription
// reads: go-webhooks::subscriptions::v1::<segment...> with each segment
// URL-path escaped.
func SubscriptionCacheKey(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, subscriptionCacheKeyPrefix)
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(escaped, "::")
}

// ListActive serves the full active set from cache. The set is cached under
// a single key regardless of eventType because wildcard matching happens in
// the domain and the active set is what every fan-out needs.
func (s *CachedSubscriptionStore) ListActive(ctx context.Context, eventType string) ([]core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey := SubscriptionCacheKey("active")
	subscriptions, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Subscription, error) {
		return s.base.ListActive(ctx, eventType)
	})
	if err != nil {
		return nil, err
	}
	return cloneSubscriptions(subscriptions), nil
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	cacheKey := SubscriptionCacheKey("id", id)
	subscription, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Subscription, error) {
		return s.base.Get(ctx, id)
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return subscription, nil
}

func (s *CachedSubscriptionStore) Save(ctx context.Context, subscription core.Subscription) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	saved, err := s.base.Save(ctx, subscription)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.invalidate(ctx, saved.ID); err != nil {
		return core.Subscription{}, err
	}
	return saved, nil
}

func (s *CachedSubscriptionStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	if err := s.base.Deactivate(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, SubscriptionCacheKey("active")); err != nil {
		return err
	}
	if strings.TrimSpace(id) != "" {
		return s.cache.Delete(ctx, SubscriptionCacheKey("id", id))
	}
	return nil
}

func cloneSubscriptions(in []core.Subscription) []core.Subscription {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.Subscription, len(in))
	for i, subscription := range in {
		subscription.EventTypes = append([]string(nil), subscription.EventTypes...)
		out[i] = subscription
	}
	return out
}

var _ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
var _ SubscriptionPersistence = (*SubscriptionStore)(nil)
var _ SubscriptionPersistence = (*CachedSubscriptionStore)(nil)
