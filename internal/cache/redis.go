package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
)

const namespace = "spherecore"

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = fmt.Errorf("cache is disabled")
	// ErrCacheMiss is returned when a key is absent
	ErrCacheMiss = errors.New("cache miss")
)

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis cache client
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// HashKey condenses arbitrary key parts into a fixed-length key segment
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	return namespace + ":" + key
}

// GetJSON decodes the value at key into dst
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	raw, err := c.client.Get(ctx, c.namespaceKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// SetJSON stores value at key with the configured TTL
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.client.Set(ctx, c.namespaceKey(key), raw, c.ttl).Err()
}

// Delete removes a key from cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Del(ctx, c.namespaceKey(key)).Err()
}

func sphereVersionKey(sphereID int64) string {
	return "sphere-version:" + strconv.FormatInt(sphereID, 10)
}

// SphereVersion returns the listing version of a sphere, 0 if never bumped
func (c *Cache) SphereVersion(ctx context.Context, sphereID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}
	v, err := c.client.Get(ctx, c.namespaceKey(sphereVersionKey(sphereID))).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// BumpSphere invalidates every cached listing of a sphere
func (c *Cache) BumpSphere(ctx context.Context, sphereID int64) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Incr(ctx, c.namespaceKey(sphereVersionKey(sphereID))).Err()
}

// ListingKey names a cached listing page under the sphere's current version
func ListingKey(sphereID, version int64, parts ...string) string {
	return fmt.Sprintf("listing:%d:%d:%s", sphereID, version, HashKey(parts...))
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
