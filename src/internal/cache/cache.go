package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheManager fronts a primary cache (Redis when configured) with an
// in-memory fallback.
type CacheManager struct {
	primary   Cache
	fallback  Cache
	enabled   bool
	keyPrefix string
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cfg *viper.Viper) *CacheManager {
	manager := &CacheManager{
		enabled:   cfg.GetBool("cache.enabled"),
		keyPrefix: cfg.GetString("cache.key_prefix"),
	}
	if manager.keyPrefix == "" {
		manager.keyPrefix = "caslinks:"
	}

	if manager.enabled && cfg.GetBool("redis.enabled") {
		if redisCache, err := NewRedisCache(cfg); err == nil {
			manager.primary = redisCache
		}
	}

	// Always have memory cache as fallback
	manager.fallback = NewMemoryCache()

	return manager
}

func (cm *CacheManager) key(key string) string {
	return cm.keyPrefix + key
}

func (cm *CacheManager) active() Cache {
	if cm.primary != nil {
		return cm.primary
	}
	return cm.fallback
}

// Get retrieves a raw string value
func (cm *CacheManager) Get(ctx context.Context, key string) (string, error) {
	if !cm.enabled {
		return "", ErrCacheMiss
	}
	return cm.active().Get(ctx, cm.key(key))
}

// Set stores a raw string value
func (cm *CacheManager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !cm.enabled {
		return nil
	}
	return cm.active().Set(ctx, cm.key(key), value, ttl)
}

// Delete removes a key
func (cm *CacheManager) Delete(ctx context.Context, key string) error {
	if !cm.enabled {
		return nil
	}
	return cm.active().Delete(ctx, cm.key(key))
}

// GetJSON retrieves and unmarshals a JSON value
func (cm *CacheManager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := cm.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON marshals and stores a JSON value
func (cm *CacheManager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return cm.Set(ctx, key, string(raw), ttl)
}

// Close closes the underlying caches
func (cm *CacheManager) Close() error {
	if cm.primary != nil {
		return cm.primary.Close()
	}
	return nil
}

// RedisCache implements Cache using Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg *viper.Viper) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetString("redis.addr"),
		Password:     cfg.GetString("redis.password"),
		DB:           cfg.GetInt("redis.db"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (rc *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return value, nil
}

func (rc *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// MemoryCache implements Cache using in-memory storage (fallback)
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryItem
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryItem),
	}
}

func (mc *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	mc.mu.RLock()
	item, ok := mc.data[key]
	mc.mu.RUnlock()

	if !ok || time.Now().After(item.expiresAt) {
		if ok {
			mc.mu.Lock()
			delete(mc.data, key)
			mc.mu.Unlock()
		}
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.data[key] = memoryItem{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) Close() error {
	return nil
}
