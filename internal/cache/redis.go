package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"user_directory/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// SetupRedis connects to Redis. It returns a nil client when no host is
// configured, which disables caching.
func SetupRedis(redisCfg *config.RedisConfig) (*redis.Client, error) {
	if !redisCfg.Enabled() {
		logrus.Info("Redis host not configured, user cache disabled")
		return nil, nil
	}

	addr := fmt.Sprintf("%s:%s", redisCfg.Host, redisCfg.Port)

	dbIndex, err := strconv.Atoi(redisCfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number %q: %w", redisCfg.RedisDB, err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisCfg.RedisPassword,
		DB:       dbIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.WithField("addr", addr).Info("Redis connection established successfully")
	return rdb, nil
}

// Connect is SetupRedis for processes that can run without a cache: a
// failed connection is logged and yields a nil client.
func Connect(redisCfg *config.RedisConfig) *redis.Client {
	rdb, err := SetupRedis(redisCfg)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, continuing without user cache")
		return nil
	}
	return rdb
}
