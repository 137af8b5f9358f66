package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/tenant"
	"github.com/avatarctic/herdbook/go/internal/core/domain/user"
	"github.com/avatarctic/herdbook/go/internal/core/ports"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Utility helpers
func cacheSetSilently(c ports.Cache, ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, b, ttl)
}

func cacheGet[T any](c ports.Cache, ctx context.Context, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// ProfileCacheKey is the cache key for one profile within its org.
func ProfileCacheKey(orgID, id uuid.UUID) string {
	return "org:" + orgID.String() + ":profile:" + id.String()
}

func userCacheKey(id uuid.UUID) string {
	return "user:id:" + id.String()
}

func tenantCacheKey(id uuid.UUID) string {
	return "tenant:id:" + id.String()
}

// Cache layers reported on the lookup counter.
const (
	layerLocal = "local"
	layerRedis = "redis"
	layerStore = "store"
)

// ProfileCacheConfig sizes the two cache tiers in front of the profile store.
type ProfileCacheConfig struct {
	LocalSize int
	LocalTTL  time.Duration
	RemoteTTL time.Duration
}

// CachingProfileRepository decorates a ProfileRepository with an in-process
// expiring LRU in front of the shared Redis cache. Mutations evict both tiers
// and broadcast the key so other instances drop their local copy.
type CachingProfileRepository struct {
	inner   ports.ProfileRepository
	cache   ports.Cache
	bus     ports.InvalidationBus
	local   *expirable.LRU[string, *access.AccessProfile]
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *logrus.Logger
}

func NewCachingProfileRepository(inner ports.ProfileRepository, cache ports.Cache, bus ports.InvalidationBus, cfg ProfileCacheConfig, lookups *prometheus.CounterVec, logger *logrus.Logger) *CachingProfileRepository {
	size := cfg.LocalSize
	if size <= 0 {
		size = 4096
	}
	localTTL := cfg.LocalTTL
	if localTTL <= 0 {
		localTTL = 2 * time.Second
	}
	remoteTTL := cfg.RemoteTTL
	if remoteTTL <= 0 {
		remoteTTL = 5 * time.Second
	}
	return &CachingProfileRepository{
		inner:   inner,
		cache:   cache,
		bus:     bus,
		local:   expirable.NewLRU[string, *access.AccessProfile](size, nil, localTTL),
		ttl:     remoteTTL,
		lookups: lookups,
		logger:  logger,
	}
}

// Listen subscribes to invalidations from other instances.
func (c *CachingProfileRepository) Listen(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Subscribe(ctx, func(key string) {
		c.local.Remove(key)
	})
}

func (c *CachingProfileRepository) List(ctx context.Context, orgID uuid.UUID) ([]*access.AccessProfile, error) {
	return c.inner.List(ctx, orgID)
}

func (c *CachingProfileRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*access.AccessProfile, error) {
	key := ProfileCacheKey(orgID, id)
	if p, ok := c.local.Get(key); ok {
		c.observe(layerLocal, "hit")
		return cloneProfile(p), nil
	}
	c.observe(layerLocal, "miss")

	res, err, _ := sf.Do(key, func() (any, error) {
		// Waiters share this load, so it must outlive the caller that started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		if v, ok := cacheGet[access.AccessProfile](c.cache, loadCtx, key); ok && v.OrgID == orgID {
			c.observe(layerRedis, "hit")
			c.local.Add(key, v)
			return v, nil
		}
		c.observe(layerRedis, "miss")
		p, err := c.inner.GetByID(loadCtx, orgID, id)
		if err != nil {
			c.observe(layerStore, "error")
			return nil, err
		}
		c.observe(layerStore, "hit")
		cacheSetSilently(c.cache, loadCtx, key, p, c.ttl)
		c.local.Add(key, cloneProfile(p))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, ok := res.(*access.AccessProfile)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	// Callers may mutate the result; shared singleflight values must not leak.
	return cloneProfile(p), nil
}

func (c *CachingProfileRepository) Create(ctx context.Context, p *access.AccessProfile) error {
	if err := c.inner.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, ProfileCacheKey(p.OrgID, p.ID))
	return nil
}

// Update never reads through the cache; the patch is merged by the store.
func (c *CachingProfileRepository) Update(ctx context.Context, orgID, id uuid.UUID, patch access.ProfilePatch) (*access.AccessProfile, bool, error) {
	p, changed, err := c.inner.Update(ctx, orgID, id, patch)
	if err != nil {
		return nil, false, err
	}
	if changed {
		c.invalidate(ctx, ProfileCacheKey(orgID, id))
	}
	return p, changed, nil
}

func (c *CachingProfileRepository) Delete(ctx context.Context, orgID, id uuid.UUID, reassignTo *uuid.UUID) ([]uuid.UUID, error) {
	reassigned, err := c.inner.Delete(ctx, orgID, id, reassignTo)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, ProfileCacheKey(orgID, id))
	// Reassigned users carry a new binding on their cached record.
	for _, uid := range reassigned {
		c.deleteShared(ctx, userCacheKey(uid))
	}
	return reassigned, nil
}

func (c *CachingProfileRepository) BindUser(ctx context.Context, orgID, userID, profileID uuid.UUID) error {
	if err := c.inner.BindUser(ctx, orgID, userID, profileID); err != nil {
		return err
	}
	c.deleteShared(ctx, userCacheKey(userID))
	return nil
}

// invalidate evicts key locally, from Redis, and on every subscribed instance.
func (c *CachingProfileRepository) invalidate(ctx context.Context, key string) {
	c.local.Remove(key)
	c.deleteShared(ctx, key)
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, key); err != nil && c.logger != nil {
		c.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("failed to publish cache invalidation")
	}
}

func (c *CachingProfileRepository) deleteShared(ctx context.Context, key string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, key); err != nil && c.logger != nil {
		c.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("failed to delete cache entry")
	}
}

func (c *CachingProfileRepository) observe(layer, result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(layer, result).Inc()
	}
}

func cloneProfile(p *access.AccessProfile) *access.AccessProfile {
	if p == nil {
		return nil
	}
	out := *p
	if p.AccessControls != nil {
		out.AccessControls = make([]access.AccessControl, len(p.AccessControls))
		copy(out.AccessControls, p.AccessControls)
	}
	return &out
}

// CachingUserRepository caches GetByID only, with a short TTL. Binding changes
// delete the entry through CachingProfileRepository.
type CachingUserRepository struct {
	inner ports.UserRepository
	cache ports.Cache
	ttl   time.Duration
}

func NewCachingUserRepository(inner ports.UserRepository, cache ports.Cache, ttl time.Duration) ports.UserRepository {
	return &CachingUserRepository{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachingUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	key := userCacheKey(id)
	if v, ok := cacheGet[user.User](c.cache, ctx, key); ok {
		return v, nil
	}
	u, err := c.inner.GetByID(ctx, id)
	if err == nil {
		cacheSetSilently(c.cache, ctx, key, u, c.ttl)
	}
	return u, err
}

// CachingTenantRepository decorates a TenantRepository with cache-aside.
type CachingTenantRepository struct {
	inner ports.TenantRepository
	cache ports.Cache
	ttl   time.Duration
}

func NewCachingTenantRepository(inner ports.TenantRepository, cache ports.Cache, ttl time.Duration) ports.TenantRepository {
	return &CachingTenantRepository{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachingTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	key := tenantCacheKey(id)
	if v, ok := cacheGet[tenant.Tenant](c.cache, ctx, key); ok {
		return v, nil
	}
	t, err := c.inner.GetByID(ctx, id)
	if err == nil {
		cacheSetSilently(c.cache, ctx, key, t, c.ttl)
	}
	return t, err
}

// Simple validation to ensure decorators implement interfaces at compile time
var _ ports.ProfileRepository = (*CachingProfileRepository)(nil)
var _ ports.UserRepository = (*CachingUserRepository)(nil)
var _ ports.TenantRepository = (*CachingTenantRepository)(nil)

// singleflight group for coalescing cache-miss loads in-process
var sf singleflight.Group

const sharedLoadTimeout = 3 * time.Second
