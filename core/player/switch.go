package player

import (
	"sync"

	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
)

// Switch routes every playback intent to the active variant. Subscribers
// see the state of whichever variant is active.
type Switch struct {
	local  *Local
	remote *Remote

	mu        sync.RWMutex
	networked bool

	observers observers
}

// NewSwitch starts on the local player.
func NewSwitch(local *Local, remote *Remote) *Switch {
	s := &Switch{local: local, remote: remote}
	local.Subscribe(func(state model.PlaybackState) { s.forward(false, state) })
	remote.Subscribe(func(state model.PlaybackState) { s.forward(true, state) })
	return s
}

func (s *Switch) forward(fromRemote bool, state model.PlaybackState) {
	s.mu.RLock()
	active := s.networked == fromRemote
	s.mu.RUnlock()
	if active {
		s.observers.notify(state)
	}
}

func (s *Switch) active() Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.networked {
		return s.remote
	}
	return s.local
}

// Local returns the authority variant.
func (s *Switch) Local() *Local { return s.local }

// Remote returns the follower variant.
func (s *Switch) Remote() *Remote { return s.remote }

// IsNetworkPlayer reports whether intents go to a remote server.
func (s *Switch) IsNetworkPlayer() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networked
}

// SetNetworkPlayer hands control to the remote server. Local playback is
// paused so two instances do not play at once.
func (s *Switch) SetNetworkPlayer() {
	s.mu.Lock()
	if s.networked {
		s.mu.Unlock()
		return
	}
	s.networked = true
	s.mu.Unlock()

	if s.local.State().IsPlaying {
		s.local.OnPauseCommand()
	}
	logger.Info("playback switched to network player")
	s.observers.notify(s.remote.State())
}

// SetLocalPlayer takes control back and forgets the mirrored remote state.
func (s *Switch) SetLocalPlayer() {
	s.mu.Lock()
	if !s.networked {
		s.mu.Unlock()
		return
	}
	s.networked = false
	s.mu.Unlock()

	s.remote.Reset()
	logger.Info("playback switched to local player")
	s.observers.notify(s.local.State())
}

func (s *Switch) State() model.PlaybackState { return s.active().State() }

func (s *Switch) Subscribe(fn func(model.PlaybackState)) func() {
	return s.observers.subscribe(fn)
}

func (s *Switch) OnPlaySongCommand(track model.Track)      { s.active().OnPlaySongCommand(track) }
func (s *Switch) OnUpdateSongCommand(track model.Track)    { s.active().OnUpdateSongCommand(track) }
func (s *Switch) OnFindSongCommand(q string) []model.Track { return s.active().OnFindSongCommand(q) }
func (s *Switch) OnIsPlayingChanged(isPlaying bool)        { s.active().OnIsPlayingChanged(isPlaying) }
func (s *Switch) OnPlayCommand()                           { s.active().OnPlayCommand() }
func (s *Switch) OnPauseCommand()                          { s.active().OnPauseCommand() }
func (s *Switch) OnResumeCommand()                         { s.active().OnResumeCommand() }
func (s *Switch) OnPlayOrPauseCommand()                    { s.active().OnPlayOrPauseCommand() }
func (s *Switch) OnToggleShuffleCommand()                  { s.active().OnToggleShuffleCommand() }
func (s *Switch) OnSwitchRepeatCommand()                   { s.active().OnSwitchRepeatCommand() }
func (s *Switch) OnStopCommand()                           { s.active().OnStopCommand() }
func (s *Switch) OnSeekCommand(positionMs int64)           { s.active().OnSeekCommand(positionMs) }
func (s *Switch) OnNextCommand()                           { s.active().OnNextCommand() }
func (s *Switch) OnPreviousCommand()                       { s.active().OnPreviousCommand() }
func (s *Switch) OnSongsChanged(tracks []model.Track)      { s.active().OnSongsChanged(tracks) }

func (s *Switch) OnPlaylistChanged(tracks []model.Track, startIndex int) {
	s.active().OnPlaylistChanged(tracks, startIndex)
}
