package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DrUlysses/Kristine-sub000/model"
)

var catalog = []model.Track{
	{Title: "Song B", Artist: "Zed", Album: "Two", Path: "/m/zed/b.mp3"},
	{Title: "Song A", Artist: "Abba", Album: "One", Path: "/m/abba/a.mp3"},
	{Title: "Intro", Artist: "Abba", Album: "One", Path: "/m/abba/0.mp3"},
}

func TestMemorySongRepositoryListOrder(t *testing.T) {
	repo := NewMemorySongRepository(catalog...)
	got, err := repo.ListSongs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/m/abba/0.mp3", "/m/abba/a.mp3", "/m/zed/b.mp3"}
	for i, p := range model.Paths(got) {
		if p != want[i] {
			t.Fatalf("order = %v, want %v", model.Paths(got), want)
		}
	}
}

func TestMemorySongRepositoryUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySongRepository(catalog...)

	renamed := catalog[0]
	renamed.Title = "Song B (remaster)"
	if err := repo.UpsertSongs(ctx, []model.Track{renamed, {Title: "New", Path: "/m/new.mp3"}}); err != nil {
		t.Fatal(err)
	}
	all, _ := repo.ListSongs(ctx)
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	if i := model.IndexOf(all, renamed.Path); all[i].Title != renamed.Title {
		t.Errorf("title = %q, want %q", all[i].Title, renamed.Title)
	}

	if err := repo.RemoveSong(ctx, "/m/new.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := repo.RemoveSong(ctx, "/m/new.mp3"); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("second remove err = %v, want ErrSongNotFound", err)
	}
}

func TestMemorySongRepositoryFind(t *testing.T) {
	repo := NewMemorySongRepository(catalog...)
	got, _ := repo.FindSongs(context.Background(), "abba")
	if len(got) != 2 {
		t.Fatalf("find abba = %d songs, want 2", len(got))
	}
	got, _ = repo.FindSongs(context.Background(), "")
	if len(got) != len(catalog) {
		t.Fatalf("empty query = %d songs, want %d", len(got), len(catalog))
	}
}

type fakeCache struct {
	tracks      []model.Track
	ok          bool
	gets        int
	invalidated int
}

func (c *fakeCache) Get(ctx context.Context) ([]model.Track, bool, error) {
	c.gets++
	return c.tracks, c.ok, nil
}

func (c *fakeCache) Set(ctx context.Context, tracks []model.Track) error {
	c.tracks, c.ok = tracks, true
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context) error {
	c.tracks, c.ok = nil, false
	c.invalidated++
	return nil
}

type countingRepo struct {
	*MemorySongRepository
	lists int
}

func (r *countingRepo) ListSongs(ctx context.Context) ([]model.Track, error) {
	r.lists++
	return r.MemorySongRepository.ListSongs(ctx)
}

func TestCachedSongRepository(t *testing.T) {
	ctx := context.Background()
	backing := &countingRepo{MemorySongRepository: NewMemorySongRepository(catalog...)}
	cache := &fakeCache{}
	repo := NewCachedSongRepository(backing, cache)

	for i := 0; i < 3; i++ {
		if _, err := repo.ListSongs(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if backing.lists != 1 {
		t.Fatalf("backing listed %d times, want 1", backing.lists)
	}

	if err := repo.UpsertSongs(ctx, []model.Track{{Title: "X", Path: "/x"}}); err != nil {
		t.Fatal(err)
	}
	if cache.invalidated != 1 {
		t.Fatalf("invalidated = %d, want 1", cache.invalidated)
	}
	got, _ := repo.FindSongs(ctx, "/x")
	if len(got) != 1 || backing.lists != 2 {
		t.Fatalf("after write: found %d, backing lists %d", len(got), backing.lists)
	}
}
