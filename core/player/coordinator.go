// Package player owns the playback state of one instance. Local drives the
// real engine and is the source of truth; Remote mirrors a server and
// forwards intents to it; Switch picks which one receives commands.
package player

import (
	"sync"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/model"
)

// Coordinator is the full set of playback intents understood by both
// variants.
type Coordinator interface {
	OnPlaySongCommand(track model.Track)
	OnUpdateSongCommand(track model.Track)
	OnFindSongCommand(query string) []model.Track
	OnIsPlayingChanged(isPlaying bool)
	OnPlayCommand()
	OnPauseCommand()
	OnResumeCommand()
	OnPlayOrPauseCommand()
	OnToggleShuffleCommand()
	OnSwitchRepeatCommand()
	OnStopCommand()
	OnSeekCommand(positionMs int64)
	OnNextCommand()
	OnPreviousCommand()
	OnPlaylistChanged(tracks []model.Track, startIndex int)
	OnSongsChanged(tracks []model.Track)

	// State returns a copy of the current state.
	State() model.PlaybackState
	// Subscribe registers fn for every state change. The returned func
	// unregisters it and may be called more than once.
	Subscribe(fn func(model.PlaybackState)) (cancel func())
}

// UpdateSink receives the updates a Local coordinator produces. The session
// server implements it.
type UpdateSink interface {
	SendPlayerUpdate(upd protocol.Update)
}

// CommandSender carries a Remote coordinator's intents to its server.
type CommandSender interface {
	Send(cmd protocol.Command) error
	SendPlaylistToServer(tracks []model.Track, current model.Track) error
}

type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(model.PlaybackState)
}

func (o *observers) subscribe(fn func(model.PlaybackState)) func() {
	o.mu.Lock()
	if o.fns == nil {
		o.fns = make(map[int]func(model.PlaybackState))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) notify(state model.PlaybackState) {
	o.mu.Lock()
	fns := make([]func(model.PlaybackState), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(state.Clone())
	}
}

// sameTrack reports whether a and b describe the same track with the same
// metadata. Two nils are equal.
func sameTrack(a, b *model.Track) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Path == b.Path &&
		a.Title == b.Title &&
		a.Artist == b.Artist &&
		a.Album == b.Album &&
		a.Duration == b.Duration &&
		string(a.Artwork) == string(b.Artwork)
}

// selectIndex points s at playlist[i].
func selectIndex(s *model.PlaybackState, i int) model.Track {
	t := s.Playlist[i]
	s.TrackIndex = i
	s.CurrentTrack = &t
	return t
}

// replacePlaylist swaps in tracks and keeps the current track selected when
// it is still present.
func replacePlaylist(s *model.PlaybackState, tracks []model.Track) {
	s.Playlist = append([]model.Track(nil), tracks...)
	if s.CurrentTrack == nil {
		s.TrackIndex = -1
		return
	}
	if i := model.IndexOf(s.Playlist, s.CurrentTrack.Path); i >= 0 {
		s.TrackIndex = i
		return
	}
	s.TrackIndex = -1
	s.CurrentTrack = nil
}

// updateMetadata replaces every entry with track's path, including the
// current track.
func updateMetadata(s *model.PlaybackState, track model.Track) bool {
	found := false
	for i := range s.Playlist {
		if s.Playlist[i].Path == track.Path {
			s.Playlist[i] = track
			found = true
		}
	}
	if s.CurrentTrack != nil && s.CurrentTrack.Path == track.Path {
		t := track
		s.CurrentTrack = &t
		found = true
	}
	return found
}

func findInPlaylist(playlist []model.Track, query string, seen map[string]bool) []model.Track {
	var out []model.Track
	for _, t := range playlist {
		if !seen[t.Path] && t.Matches(query) {
			seen[t.Path] = true
			out = append(out, t)
		}
	}
	return out
}
