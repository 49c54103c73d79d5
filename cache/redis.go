package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/DrUlysses/Kristine-sub000/config"

	"github.com/go-redis/redis/v8"
)

// Connect opens a Redis client for the catalog cache and checks it answers.
func Connect(cfg config.CatalogConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
