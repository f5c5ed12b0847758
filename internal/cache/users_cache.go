package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultUsersTTL = 5 * time.Minute

	// AllUsersKey holds the JSON encoded result of the user listing.
	AllUsersKey = "users:all"
)

// setIfGeneration stores ARGV[2] under KEYS[2] only while the generation
// counter in KEYS[1] still equals ARGV[1]. A missing counter is generation 0.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if gen == false then
	gen = '0'
end
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// UsersCache is a read-through cache for the user listing. A nil
// *UsersCache, or one without a client, behaves as a permanent miss.
//
// Every key has a generation counter. Invalidate bumps it, and readers that
// loaded from the database pass the generation they saw before loading to
// SetIfGeneration, so a snapshot taken before a write can never be cached
// after that write.
type UsersCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUsersCache(client *redis.Client, ttl time.Duration) *UsersCache {
	if ttl <= 0 {
		ttl = DefaultUsersTTL
	}
	return &UsersCache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client backs the cache.
func (c *UsersCache) Enabled() bool {
	return c != nil && c.client != nil
}

func generationKey(key string) string {
	return key + ":gen"
}

// Get returns the cached bytes for key, or nil on a miss.
func (c *UsersCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.Enabled() {
		return nil, nil
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Generation returns the current write generation of key.
func (c *UsersCache) Generation(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, generationKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration stores data as JSON under key with the cache TTL, unless
// key was invalidated after gen was read. It reports whether it stored.
func (c *UsersCache) SetIfGeneration(ctx context.Context, key string, data interface{}, gen int64) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return false, err
	}

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{generationKey(key), key},
		strconv.FormatInt(gen, 10),
		jsonData,
		c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops key and bumps its generation so that in-flight loads
// started before this call cannot repopulate it.
func (c *UsersCache) Invalidate(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, generationKey(key))
	pipe.Del(ctx, key)
	_, err := pipe.Exec(ctx)
	return err
}
