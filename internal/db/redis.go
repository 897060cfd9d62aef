package db

import (
	"github.com/jlescarlan11/project-krawl-sub003/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a redis client, or nil when no address is configured.
// Redis is optional: the stream hub and the redis trail backend both degrade
// to local-only operation without it.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
