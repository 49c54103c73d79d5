package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
	"github.com/DrUlysses/Kristine-sub000/repository"

	"github.com/fsnotify/fsnotify"
)

// Watcher mirrors a music directory into a SongRepository.
type Watcher struct {
	root     string
	repo     repository.SongRepository
	onChange func()

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for root. onChange, if set, runs after every
// catalog change.
func NewWatcher(root string, repo repository.SongRepository, onChange func()) *Watcher {
	return &Watcher{root: filepath.Clean(root), repo: repo, onChange: onChange}
}

// Sync rescans root, adds what is new and drops songs whose files are gone.
func (w *Watcher) Sync(ctx context.Context) error {
	found, err := Scan(w.root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.root, err)
	}
	if err := w.repo.UpsertSongs(ctx, found); err != nil {
		return err
	}

	known, err := w.repo.ListSongs(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(found))
	for _, t := range found {
		present[t.Path] = true
	}
	removed := 0
	for _, t := range known {
		if w.under(t.Path) && !present[t.Path] {
			if err := w.repo.RemoveSong(ctx, t.Path); err != nil && !errors.Is(err, repository.ErrSongNotFound) {
				return err
			}
			removed++
		}
	}

	logger.Info("library synced",
		logger.String("root", w.root),
		logger.Int("songs", len(found)),
		logger.Int("removed", removed))
	w.changed()
	return nil
}

// Start syncs once and then follows file system events until Stop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Sync(ctx); err != nil {
		cancel()
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.addTree(fsw, w.root); err != nil {
		fsw.Close()
		cancel()
		return err
	}

	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)

	logger.Info("library watch started", logger.String("root", w.root))
	return nil
}

// Stop ends the event loop. Safe to call when stopped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	cancel()
	fsw.Close()
	<-done
}

// fsnotify is not recursive, so every directory gets its own watch.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("library watcher error", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				logger.Warn("library watch add failed", logger.ErrorField(err))
			}
			tracks, err := Scan(event.Name)
			if err != nil {
				logger.Warn("library scan failed", logger.String("dir", event.Name), logger.ErrorField(err))
				return
			}
			w.upsert(ctx, w.relocate(tracks)...)
			return
		}
		if IsAudio(event.Name) {
			w.upsert(ctx, TrackFromPath(w.root, event.Name))
		}

	case event.Has(fsnotify.Write):
		if IsAudio(event.Name) {
			w.upsert(ctx, TrackFromPath(w.root, event.Name))
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.removeUnder(ctx, event.Name)
	}
}

// relocate recomputes metadata relative to the library root for tracks
// scanned from a subdirectory.
func (w *Watcher) relocate(tracks []model.Track) []model.Track {
	for i, t := range tracks {
		tracks[i] = TrackFromPath(w.root, t.Path)
	}
	return tracks
}

func (w *Watcher) upsert(ctx context.Context, tracks ...model.Track) {
	if len(tracks) == 0 {
		return
	}
	if err := w.repo.UpsertSongs(ctx, tracks); err != nil {
		logger.Warn("library update failed", logger.ErrorField(err))
		return
	}
	logger.Debug("library songs added", logger.Strings("paths", model.Paths(tracks)))
	w.changed()
}

// removeUnder drops path itself and, when it was a directory, everything
// below it.
func (w *Watcher) removeUnder(ctx context.Context, path string) {
	known, err := w.repo.ListSongs(ctx)
	if err != nil {
		logger.Warn("library listing failed", logger.ErrorField(err))
		return
	}
	prefix := path + string(filepath.Separator)
	removed := 0
	for _, t := range known {
		if t.Path != path && !strings.HasPrefix(t.Path, prefix) {
			continue
		}
		if err := w.repo.RemoveSong(ctx, t.Path); err != nil && !errors.Is(err, repository.ErrSongNotFound) {
			logger.Warn("library remove failed", logger.String("path", t.Path), logger.ErrorField(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Debug("library songs removed", logger.String("path", path), logger.Int("count", removed))
		w.changed()
	}
}

func (w *Watcher) under(path string) bool {
	return strings.HasPrefix(path, w.root+string(filepath.Separator))
}

func (w *Watcher) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}
