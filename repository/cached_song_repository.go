package repository

import (
	"context"

	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
)

// ListingCache holds a serialized copy of the full listing.
type ListingCache interface {
	Get(ctx context.Context) ([]model.Track, bool, error)
	Set(ctx context.Context, tracks []model.Track) error
	Invalidate(ctx context.Context) error
}

// CachedSongRepository serves ListSongs from a cache and invalidates it on
// every write. Cache failures fall through to the backing repository.
type CachedSongRepository struct {
	next  SongRepository
	cache ListingCache
}

func NewCachedSongRepository(next SongRepository, cache ListingCache) *CachedSongRepository {
	return &CachedSongRepository{next: next, cache: cache}
}

func (r *CachedSongRepository) ListSongs(ctx context.Context) ([]model.Track, error) {
	tracks, ok, err := r.cache.Get(ctx)
	if err != nil {
		logger.Warn("song cache read failed", logger.ErrorField(err))
	}
	if ok {
		return tracks, nil
	}

	tracks, err = r.next.ListSongs(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, tracks); err != nil {
		logger.Warn("song cache write failed", logger.ErrorField(err))
	}
	return tracks, nil
}

func (r *CachedSongRepository) FindSongs(ctx context.Context, query string) ([]model.Track, error) {
	all, err := r.ListSongs(ctx)
	if err != nil {
		return nil, err
	}
	return filterTracks(all, query), nil
}

func (r *CachedSongRepository) UpsertSongs(ctx context.Context, tracks []model.Track) error {
	defer r.invalidate(ctx)
	return r.next.UpsertSongs(ctx, tracks)
}

func (r *CachedSongRepository) RemoveSong(ctx context.Context, path string) error {
	defer r.invalidate(ctx)
	return r.next.RemoveSong(ctx, path)
}

func (r *CachedSongRepository) invalidate(ctx context.Context) {
	if err := r.cache.Invalidate(ctx); err != nil {
		logger.Warn("song cache invalidation failed", logger.ErrorField(err))
	}
}
