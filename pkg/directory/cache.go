package directory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/plans"
)

const profileCacheName = "user_profile"

// CachedDirectory caches user profiles in front of another Directory.
// Organization membership and plans are always read through, since they
// feed candidate lists and quota decisions.
type CachedDirectory struct {
	next    Directory
	cache   *lru.LRU[string, UserSummary]
	metrics *observability.Metrics
}

// NewCachedDirectory wraps next with a profile cache of the given size and TTL.
// metrics may be nil.
func NewCachedDirectory(next Directory, size int, ttl time.Duration, metrics *observability.Metrics) *CachedDirectory {
	if size <= 0 {
		size = 1024
	}
	return &CachedDirectory{
		next:    next,
		cache:   lru.NewLRU[string, UserSummary](size, nil, ttl),
		metrics: metrics,
	}
}

// GetUser returns a cached profile or loads it
func (c *CachedDirectory) GetUser(ctx context.Context, userID string) (*UserSummary, error) {
	if u, ok := c.cache.Get(userID); ok {
		c.recordHit()
		return &u, nil
	}
	c.recordMiss()

	u, err := c.next.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, *u)
	return u, nil
}

// GetUsers serves what it can from the cache and batch-loads the rest
func (c *CachedDirectory) GetUsers(ctx context.Context, userIDs []string) (map[string]UserSummary, error) {
	result := make(map[string]UserSummary, len(userIDs))
	var missing []string

	for _, id := range userIDs {
		if u, ok := c.cache.Get(id); ok {
			c.recordHit()
			result[id] = u
			continue
		}
		c.recordMiss()
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := c.next.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range loaded {
		c.cache.Add(id, u)
		result[id] = u
	}
	return result, nil
}

// OrgMembers reads through to the underlying directory
func (c *CachedDirectory) OrgMembers(ctx context.Context, orgID string) ([]UserSummary, error) {
	return c.next.OrgMembers(ctx, orgID)
}

// UserPlan reads through to the underlying directory
func (c *CachedDirectory) UserPlan(ctx context.Context, userID string) (plans.Tier, error) {
	return c.next.UserPlan(ctx, userID)
}

// Invalidate drops a cached profile, e.g. after a profile sync
func (c *CachedDirectory) Invalidate(userID string) {
	c.cache.Remove(userID)
}

// Len returns the number of cached profiles
func (c *CachedDirectory) Len() int {
	return c.cache.Len()
}

func (c *CachedDirectory) recordHit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(profileCacheName).Inc()
	}
}

func (c *CachedDirectory) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(profileCacheName).Inc()
	}
}
