package player

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
	"github.com/DrUlysses/Kristine-sub000/repository"
)

const searchTimeout = 5 * time.Second

// LocalOptions configures a Local coordinator.
type LocalOptions struct {
	// Catalog is searched by OnFindSongCommand before the playlist.
	Catalog repository.SongRepository
	// Rand shuffles the playlist on forward wrap. Defaults to a random
	// source.
	Rand *rand.Rand
}

// engineCall is deferred until the state lock is released so engine
// callbacks can re-enter the coordinator.
type engineCall func(Engine)

// Local is the authority variant. It drives engine directly and publishes
// every change of the current track or play state to the sink.
type Local struct {
	engine  Engine
	catalog repository.SongRepository
	rng     *rand.Rand

	mu    sync.Mutex
	state model.PlaybackState
	sink  UpdateSink

	observers observers
}

// NewLocal creates a stopped coordinator with an empty playlist.
func NewLocal(engine Engine, opts LocalOptions) *Local {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Local{
		engine:  engine,
		catalog: opts.Catalog,
		rng:     rng,
		state:   model.NewPlaybackState(),
	}
}

// SetSink directs updates to sink. nil stops publishing.
func (l *Local) SetSink(sink UpdateSink) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *Local) State() model.PlaybackState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

func (l *Local) Subscribe(fn func(model.PlaybackState)) func() {
	return l.observers.subscribe(fn)
}

// update applies fn under the state lock and publishes the resulting
// updates in order before releasing it. Engine calls and observers run
// afterwards.
func (l *Local) update(fn func(s *model.PlaybackState) []engineCall) {
	l.apply(fn, false)
}

// apply is update with announce forcing both NOW_PLAYING and
// PLAYBACK_STATE out even when they did not change.
func (l *Local) apply(fn func(s *model.PlaybackState) []engineCall, announce bool) {
	l.mu.Lock()
	prevTrack := l.state.CurrentTrack
	prevPlaying := l.state.IsPlaying

	calls := fn(&l.state)

	trackChanged := !sameTrack(prevTrack, l.state.CurrentTrack)
	playingChanged := prevPlaying != l.state.IsPlaying
	changed := trackChanged || playingChanged
	if l.sink != nil {
		if trackChanged || announce {
			l.sink.SendPlayerUpdate(protocol.NowPlaying(l.state.CurrentTrack))
		}
		if playingChanged || announce {
			l.sink.SendPlayerUpdate(protocol.PlaybackState(l.state.IsPlaying))
		}
	}
	snapshot := l.state.Clone()
	l.mu.Unlock()

	if l.engine != nil {
		for _, call := range calls {
			call(l.engine)
		}
	}
	if changed || len(calls) > 0 {
		l.observers.notify(snapshot)
	}
}

func play(path string) engineCall {
	return func(e Engine) { e.Play(path) }
}

// playIndex selects playlist[i] and starts it.
func playIndex(s *model.PlaybackState, i int) []engineCall {
	t := selectIndex(s, i)
	s.IsPlaying = true
	return []engineCall{play(t.Path)}
}

// OnPlaySongCommand selects track, appending it when the playlist does not
// hold it yet, and starts playback.
func (l *Local) OnPlaySongCommand(track model.Track) {
	l.update(func(s *model.PlaybackState) []engineCall {
		var calls []engineCall
		i := model.IndexOf(s.Playlist, track.Path)
		if i < 0 {
			s.Playlist = append(s.Playlist, track)
			i = len(s.Playlist) - 1
			paths := model.Paths(s.Playlist)
			calls = append(calls, func(e Engine) { e.SetPlaylist(paths) })
		}
		return append(calls, playIndex(s, i)...)
	})
}

// OnUpdateSongCommand refreshes the metadata of every copy of track.
func (l *Local) OnUpdateSongCommand(track model.Track) {
	l.update(func(s *model.PlaybackState) []engineCall {
		if !updateMetadata(s, track) {
			logger.Debug("update for unknown song ignored", logger.String("path", track.Path))
		}
		return nil
	})
}

// OnFindSongCommand searches the catalog, then the playlist for entries the
// catalog does not know.
func (l *Local) OnFindSongCommand(query string) []model.Track {
	return findSongs(l.catalog, l.State().Playlist, query)
}

func findSongs(catalog repository.SongRepository, playlist []model.Track, query string) []model.Track {
	seen := make(map[string]bool)
	var out []model.Track
	if catalog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		found, err := catalog.FindSongs(ctx, query)
		cancel()
		if err != nil {
			logger.Warn("catalog search failed", logger.String("query", query), logger.ErrorField(err))
		}
		for _, t := range found {
			seen[t.Path] = true
			out = append(out, t)
		}
	}
	return append(out, findInPlaylist(playlist, query, seen)...)
}

// OnIsPlayingChanged records what the engine reports.
func (l *Local) OnIsPlayingChanged(isPlaying bool) {
	l.update(func(s *model.PlaybackState) []engineCall {
		s.IsPlaying = isPlaying
		return nil
	})
}

// OnCurrentTrackChanged records the track the engine moved to. An empty
// path means nothing is loaded.
func (l *Local) OnCurrentTrackChanged(path string) {
	l.update(func(s *model.PlaybackState) []engineCall {
		if path == "" {
			s.TrackIndex = -1
			s.CurrentTrack = nil
			return nil
		}
		if s.CurrentTrack != nil && s.CurrentTrack.Path == path {
			return nil
		}
		if i := model.IndexOf(s.Playlist, path); i >= 0 {
			selectIndex(s, i)
			return nil
		}
		logger.Warn("engine reported a track outside the playlist", logger.String("path", path))
		return nil
	})
}

// OnPlayCommand resumes the current track, or starts the playlist from the
// top when nothing is selected.
func (l *Local) OnPlayCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		if s.CurrentTrack != nil {
			s.IsPlaying = true
			return []engineCall{func(e Engine) { e.Resume() }}
		}
		if len(s.Playlist) == 0 {
			return nil
		}
		return playIndex(s, 0)
	})
}

func (l *Local) OnPauseCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		if s.CurrentTrack == nil && !s.IsPlaying {
			return nil
		}
		s.IsPlaying = false
		return []engineCall{func(e Engine) { e.Pause() }}
	})
}

func (l *Local) OnResumeCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		if s.CurrentTrack == nil {
			return nil
		}
		s.IsPlaying = true
		return []engineCall{func(e Engine) { e.Resume() }}
	})
}

func (l *Local) OnPlayOrPauseCommand() {
	if l.State().IsPlaying {
		l.OnPauseCommand()
		return
	}
	l.OnPlayCommand()
}

func (l *Local) OnToggleShuffleCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		s.ShuffleEnabled = !s.ShuffleEnabled
		return nil
	})
}

func (l *Local) OnSwitchRepeatCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		s.RepeatMode = s.RepeatMode.Next()
		return nil
	})
}

// OnStopCommand halts the engine but keeps the selection.
func (l *Local) OnStopCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		s.IsPlaying = false
		return []engineCall{func(e Engine) { e.Stop() }}
	})
}

func (l *Local) OnSeekCommand(positionMs int64) {
	l.update(func(s *model.PlaybackState) []engineCall {
		if s.CurrentTrack == nil {
			return nil
		}
		return []engineCall{func(e Engine) { e.Seek(positionMs) }}
	})
}

// OnNextCommand advances. RepeatOne replays the current track; at the end
// RepeatAll wraps to the start, reshuffling first when shuffle is on, and
// RepeatNone stays put.
func (l *Local) OnNextCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		n := len(s.Playlist)
		if n == 0 {
			return nil
		}
		if s.RepeatMode == model.RepeatOne {
			if s.CurrentTrack == nil {
				return nil
			}
			s.IsPlaying = true
			return []engineCall{play(s.CurrentTrack.Path)}
		}
		if s.TrackIndex < n-1 {
			return playIndex(s, s.TrackIndex+1)
		}
		if s.RepeatMode != model.RepeatAll {
			return nil
		}

		var calls []engineCall
		if s.ShuffleEnabled {
			l.shuffle(s.Playlist)
			paths := model.Paths(s.Playlist)
			calls = append(calls, func(e Engine) { e.SetPlaylist(paths) })
		}
		return append(calls, playIndex(s, 0)...)
	})
}

// OnPreviousCommand steps back. It mirrors OnNextCommand except that
// wrapping to the last track never reshuffles.
func (l *Local) OnPreviousCommand() {
	l.update(func(s *model.PlaybackState) []engineCall {
		n := len(s.Playlist)
		if n == 0 {
			return nil
		}
		if s.RepeatMode == model.RepeatOne {
			if s.CurrentTrack == nil {
				return nil
			}
			s.IsPlaying = true
			return []engineCall{play(s.CurrentTrack.Path)}
		}
		if s.TrackIndex > 0 {
			return playIndex(s, s.TrackIndex-1)
		}
		if s.RepeatMode == model.RepeatAll {
			return playIndex(s, n-1)
		}
		return nil
	})
}

// OnPlaylistChanged replaces the playlist and starts at startIndex in one
// step. The new position is always announced to controllers, even when the
// same track keeps playing.
func (l *Local) OnPlaylistChanged(tracks []model.Track, startIndex int) {
	if startIndex < 0 || startIndex >= len(tracks) {
		logger.Warn("playlist start index out of range",
			logger.Int("index", startIndex),
			logger.Int("tracks", len(tracks)))
		return
	}
	l.apply(func(s *model.PlaybackState) []engineCall {
		s.Playlist = append([]model.Track(nil), tracks...)
		paths := model.Paths(s.Playlist)
		calls := []engineCall{func(e Engine) { e.SetPlaylist(paths) }}
		return append(calls, playIndex(s, startIndex)...)
	}, true)
}

// OnSongsChanged replaces the playlist without interrupting playback when
// the current track survives.
func (l *Local) OnSongsChanged(tracks []model.Track) {
	l.update(func(s *model.PlaybackState) []engineCall {
		replacePlaylist(s, tracks)
		var calls []engineCall
		if s.CurrentTrack == nil && s.IsPlaying {
			s.IsPlaying = false
			calls = append(calls, func(e Engine) { e.Stop() })
		}
		paths := model.Paths(s.Playlist)
		return append([]engineCall{func(e Engine) { e.SetPlaylist(paths) }}, calls...)
	})
}

// shuffle runs under l.mu, which also guards rng.
func (l *Local) shuffle(tracks []model.Track) {
	l.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}
