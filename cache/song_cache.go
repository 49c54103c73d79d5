package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/go-redis/redis/v8"
)

// DefaultSongKey is where the catalog listing is cached.
const DefaultSongKey = "kristine:songs"

// SongCache keeps the serialized catalog listing in Redis.
type SongCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSongCache wraps client. A zero ttl keeps entries until invalidated.
func NewSongCache(client *redis.Client, ttl time.Duration) *SongCache {
	return &SongCache{client: client, key: DefaultSongKey, ttl: ttl}
}

// Get returns the cached listing. ok is false on a miss.
func (c *SongCache) Get(ctx context.Context) (tracks []model.Track, ok bool, err error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read song cache: %w", err)
	}
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, false, fmt.Errorf("failed to decode song cache: %w", err)
	}
	return tracks, true, nil
}

// Set stores the listing.
func (c *SongCache) Set(ctx context.Context, tracks []model.Track) error {
	data, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to encode song cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write song cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached listing.
func (c *SongCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate song cache: %w", err)
	}
	return nil
}
