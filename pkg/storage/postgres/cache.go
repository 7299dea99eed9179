package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/storage"
)

// CachedStorage wraps a GroupsStorage with a two-tier read cache for group
// lookups: an in-process LRU (L1) in front of Redis (L2). Listings always
// hit the database; only GetGroup is cached, since it is by far the hottest
// call. Every group mutation invalidates both tiers.
type CachedStorage struct {
	storage.GroupsStorage

	l1  *lru.LRU[string, *core.Group]
	l2  *redis.Client
	ttl time.Duration
}

// NewCachedStorage builds the cache around the given storage. The Redis
// connection is pinged before use.
func NewCachedStorage(inner storage.GroupsStorage, cfg storage.Config) (*CachedStorage, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newCachedStorage(inner, client, cfg), nil
}

// newCachedStorage is the constructor seam for tests, which supply a
// miniredis-backed client.
func newCachedStorage(inner storage.GroupsStorage, client *redis.Client, cfg storage.Config) *CachedStorage {
	size := cfg.L1CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStorage{
		GroupsStorage: inner,
		l1:            lru.NewLRU[string, *core.Group](size, nil, ttl),
		l2:            client,
		ttl:           ttl,
	}
}

// RedisClient exposes the L2 connection for health checks.
func (c *CachedStorage) RedisClient() *redis.Client { return c.l2 }

func groupKey(id core.GroupID) string {
	return "group:" + string(id)
}

// GetGroup returns the group, reading through L1 then L2 before the
// database. Cache faults fall back to the database silently.
func (c *CachedStorage) GetGroup(ctx context.Context, id core.GroupID) (*core.Group, error) {
	key := groupKey(id)
	if g, ok := c.l1.Get(key); ok {
		return g, nil
	}

	if data, err := c.l2.Get(ctx, key).Result(); err == nil {
		var g core.Group
		if err := json.Unmarshal([]byte(data), &g); err == nil {
			c.l1.Add(key, &g)
			return &g, nil
		}
		// corrupt entry, drop it
		c.l2.Del(ctx, key)
	}

	g, err := c.GroupsStorage.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, g)
	if data, err := json.Marshal(g); err == nil {
		c.l2.Set(ctx, key, data, c.ttl)
	}
	return g, nil
}

func (c *CachedStorage) invalidate(ctx context.Context, id core.GroupID) {
	key := groupKey(id)
	c.l1.Remove(key)
	c.l2.Del(ctx, key)
}

// UpdateGroup invalidates the cache after a successful update.
func (c *CachedStorage) UpdateGroup(ctx context.Context, id core.GroupID, update core.GroupUpdate, mod time.Time) error {
	if err := c.GroupsStorage.UpdateGroup(ctx, id, update, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// AddMember invalidates the cache after a successful addition.
func (c *CachedStorage) AddMember(ctx context.Context, id core.GroupID, member core.GroupUser, mod time.Time) error {
	if err := c.GroupsStorage.AddMember(ctx, id, member, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// RemoveMember invalidates the cache after a successful removal.
func (c *CachedStorage) RemoveMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	if err := c.GroupsStorage.RemoveMember(ctx, id, user, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// PromoteMember invalidates the cache after a successful promotion.
func (c *CachedStorage) PromoteMember(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	if err := c.GroupsStorage.PromoteMember(ctx, id, user, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// DemoteAdmin invalidates the cache after a successful demotion.
func (c *CachedStorage) DemoteAdmin(ctx context.Context, id core.GroupID, user core.UserName, mod time.Time) error {
	if err := c.GroupsStorage.DemoteAdmin(ctx, id, user, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// UpdateUserFields invalidates the cache after a successful field update.
func (c *CachedStorage) UpdateUserFields(ctx context.Context, id core.GroupID, user core.UserName, fields map[string]*string) error {
	if err := c.GroupsStorage.UpdateUserFields(ctx, id, user, fields); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// UpdateLastVisit invalidates the cache after a successful visit update.
func (c *CachedStorage) UpdateLastVisit(ctx context.Context, id core.GroupID, user core.UserName, visit time.Time) error {
	if err := c.GroupsStorage.UpdateLastVisit(ctx, id, user, visit); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// AddResource invalidates the cache after a successful attachment.
func (c *CachedStorage) AddResource(ctx context.Context, id core.GroupID, t core.ResourceType,
	res core.AttachedResource, mod time.Time) error {
	if err := c.GroupsStorage.AddResource(ctx, id, t, res, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// RemoveResource invalidates the cache after a successful detachment.
func (c *CachedStorage) RemoveResource(ctx context.Context, id core.GroupID, t core.ResourceType,
	rid core.ResourceID, mod time.Time) error {
	if err := c.GroupsStorage.RemoveResource(ctx, id, t, rid, mod); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Close closes the Redis connection and the wrapped storage.
func (c *CachedStorage) Close() error {
	redisErr := c.l2.Close()
	if err := c.GroupsStorage.Close(); err != nil {
		return err
	}
	return redisErr
}
