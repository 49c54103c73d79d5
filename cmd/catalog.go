package cmd

import (
	"context"
	"time"

	"github.com/DrUlysses/Kristine-sub000/cache"
	"github.com/DrUlysses/Kristine-sub000/config"
	"github.com/DrUlysses/Kristine-sub000/core/library"
	"github.com/DrUlysses/Kristine-sub000/db"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/repository"
)

// openCatalog assembles the song repository described by cfg: MySQL when a
// database host is set, memory otherwise, with Redis in front when a Redis
// host is set. The music directory is synced into it and, when follow is
// true and watching is enabled, kept in step. The returned func releases
// everything.
func openCatalog(cfg config.CatalogConfig, follow bool) (repository.SongRepository, func(), error) {
	var (
		repo     repository.SongRepository = repository.NewMemorySongRepository()
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.DBHost != "" {
		gdb, err := db.ConnectGorm(cfg, &repository.SongRecord{})
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() {
			if err := db.Close(gdb); err != nil {
				logger.Warn("close catalog database", logger.ErrorField(err))
			}
		})
		repo = repository.NewGormSongRepository(gdb)
	}

	if cfg.RedisHost != "" {
		client, err := cache.Connect(cfg)
		if err != nil {
			// The cache is optional; serve straight from the repository.
			logger.Warn("song cache disabled", logger.ErrorField(err))
		} else {
			cleanups = append(cleanups, func() { client.Close() })
			repo = repository.NewCachedSongRepository(repo, cache.NewSongCache(client, cfg.CacheTTL))
		}
	}

	if cfg.Dir != "" {
		w := library.NewWatcher(cfg.Dir, repo, nil)
		if follow && cfg.Watch {
			if err := w.Start(); err != nil {
				cleanup()
				return nil, nil, err
			}
			cleanups = append(cleanups, w.Stop)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err := w.Sync(ctx)
			cancel()
			if err != nil {
				cleanup()
				return nil, nil, err
			}
		}
	}

	return repo, cleanup, nil
}
