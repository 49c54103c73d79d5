package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/DrUlysses/Kristine-sub000/model"
)

// ErrSongNotFound is returned when a path is not in the catalog.
var ErrSongNotFound = errors.New("song not found")

// SongRepository is the local song catalog served on /songs and searched by
// the playback coordinator.
type SongRepository interface {
	ListSongs(ctx context.Context) ([]model.Track, error)
	FindSongs(ctx context.Context, query string) ([]model.Track, error)
	UpsertSongs(ctx context.Context, tracks []model.Track) error
	RemoveSong(ctx context.Context, path string) error
}

// MemorySongRepository keeps the catalog in memory, keyed by path.
type MemorySongRepository struct {
	mu    sync.RWMutex
	songs map[string]model.Track
}

func NewMemorySongRepository(tracks ...model.Track) *MemorySongRepository {
	r := &MemorySongRepository{songs: make(map[string]model.Track)}
	for _, t := range tracks {
		r.songs[t.Path] = t
	}
	return r
}

// ListSongs returns every song ordered by artist, album, title then path.
func (r *MemorySongRepository) ListSongs(ctx context.Context) ([]model.Track, error) {
	r.mu.RLock()
	out := make([]model.Track, 0, len(r.songs))
	for _, t := range r.songs {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sortTracks(out)
	return out, nil
}

func (r *MemorySongRepository) FindSongs(ctx context.Context, query string) ([]model.Track, error) {
	all, _ := r.ListSongs(ctx)
	return filterTracks(all, query), nil
}

func (r *MemorySongRepository) UpsertSongs(ctx context.Context, tracks []model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tracks {
		r.songs[t.Path] = t
	}
	return nil
}

func (r *MemorySongRepository) RemoveSong(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.songs[path]; !ok {
		return ErrSongNotFound
	}
	delete(r.songs, path)
	return nil
}

func sortTracks(tracks []model.Track) {
	sort.Slice(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Path < b.Path
	})
}

func filterTracks(tracks []model.Track, query string) []model.Track {
	out := make([]model.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Matches(query) {
			out = append(out, t)
		}
	}
	return out
}
