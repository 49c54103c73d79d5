package player

import (
	"sync"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
	"github.com/DrUlysses/Kristine-sub000/repository"
)

// Remote is the follower variant. It never touches the local engine:
// intents go to the server through sender, and the server's updates are
// mirrored into the local state by ApplyUpdate.
type Remote struct {
	sender  CommandSender
	catalog repository.SongRepository

	mu    sync.Mutex
	state model.PlaybackState

	observers observers
}

// NewRemote creates a follower with an empty mirrored state.
func NewRemote(sender CommandSender, catalog repository.SongRepository) *Remote {
	r := &Remote{sender: sender, catalog: catalog}
	r.state = followerState()
	return r
}

func followerState() model.PlaybackState {
	s := model.NewPlaybackState()
	s.IsRemoteFollower = true
	return s
}

func (r *Remote) State() model.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

func (r *Remote) Subscribe(fn func(model.PlaybackState)) func() {
	return r.observers.subscribe(fn)
}

// local changes the mirrored state without telling the server.
func (r *Remote) local(fn func(s *model.PlaybackState)) {
	r.mu.Lock()
	fn(&r.state)
	snapshot := r.state.Clone()
	r.mu.Unlock()
	r.observers.notify(snapshot)
}

func (r *Remote) send(cmd protocol.Command) {
	if err := r.sender.Send(cmd); err != nil {
		logger.Warn("remote command not sent",
			logger.String("type", string(cmd.Type)),
			logger.ErrorField(err))
	}
}

// ApplyUpdate mirrors a server update. It never sends anything back.
func (r *Remote) ApplyUpdate(upd protocol.Update) {
	r.local(func(s *model.PlaybackState) {
		switch upd.Type {
		case protocol.UpdNowPlaying:
			if upd.Song == nil {
				s.CurrentTrack = nil
				s.TrackIndex = -1
				return
			}
			t := *upd.Song
			s.CurrentTrack = &t
			s.TrackIndex = model.IndexOf(s.Playlist, t.Path)
			if s.TrackIndex >= 0 {
				s.Playlist[s.TrackIndex] = t
			}
		case protocol.UpdPlaybackState:
			s.IsPlaying = upd.IsPlaying
		}
	})
}

// Reset forgets the mirrored state.
func (r *Remote) Reset() {
	r.local(func(s *model.PlaybackState) {
		*s = followerState()
	})
}

// OnPlaySongCommand adds track to the playlist when missing and asks the
// server to play the whole playlist from track.
func (r *Remote) OnPlaySongCommand(track model.Track) {
	var playlist []model.Track
	r.local(func(s *model.PlaybackState) {
		if model.IndexOf(s.Playlist, track.Path) < 0 {
			s.Playlist = append(s.Playlist, track)
			if s.CurrentTrack != nil {
				s.TrackIndex = model.IndexOf(s.Playlist, s.CurrentTrack.Path)
			}
		}
		playlist = append([]model.Track(nil), s.Playlist...)
	})
	if err := r.sender.SendPlaylistToServer(playlist, track); err != nil {
		logger.Warn("remote playlist not sent", logger.ErrorField(err))
	}
}

// OnUpdateSongCommand only touches the mirrored playlist; the protocol has
// no metadata message.
func (r *Remote) OnUpdateSongCommand(track model.Track) {
	r.local(func(s *model.PlaybackState) {
		updateMetadata(s, track)
	})
}

func (r *Remote) OnFindSongCommand(query string) []model.Track {
	return findSongs(r.catalog, r.State().Playlist, query)
}

// OnIsPlayingChanged comes from the local engine, which a follower does not
// drive.
func (r *Remote) OnIsPlayingChanged(isPlaying bool) {
	logger.Debug("local engine state ignored while following", logger.Bool("isPlaying", isPlaying))
}

func (r *Remote) OnPlayCommand()   { r.send(protocol.Resume()) }
func (r *Remote) OnPauseCommand()  { r.send(protocol.Pause()) }
func (r *Remote) OnResumeCommand() { r.send(protocol.Resume()) }

func (r *Remote) OnPlayOrPauseCommand() {
	if r.State().IsPlaying {
		r.send(protocol.Pause())
		return
	}
	r.send(protocol.Resume())
}

// OnToggleShuffleCommand and OnSwitchRepeatCommand have no wire message and
// stay local.
func (r *Remote) OnToggleShuffleCommand() {
	r.local(func(s *model.PlaybackState) { s.ShuffleEnabled = !s.ShuffleEnabled })
}

func (r *Remote) OnSwitchRepeatCommand() {
	r.local(func(s *model.PlaybackState) { s.RepeatMode = s.RepeatMode.Next() })
}

// OnStopCommand pauses the server, the closest the protocol offers.
func (r *Remote) OnStopCommand() { r.send(protocol.Pause()) }

// OnSeekCommand is unsupported: the protocol cannot carry a position.
func (r *Remote) OnSeekCommand(positionMs int64) {
	logger.Debug("seek ignored while following", logger.Int64("positionMs", positionMs))
}

func (r *Remote) OnNextCommand()     { r.send(protocol.Next()) }
func (r *Remote) OnPreviousCommand() { r.send(protocol.Previous()) }

// OnPlaylistChanged hands the server a new playlist and start position.
func (r *Remote) OnPlaylistChanged(tracks []model.Track, startIndex int) {
	if startIndex < 0 || startIndex >= len(tracks) {
		logger.Warn("playlist start index out of range",
			logger.Int("index", startIndex),
			logger.Int("tracks", len(tracks)))
		return
	}
	r.local(func(s *model.PlaybackState) { replacePlaylist(s, tracks) })
	r.send(protocol.SetPlaylist(append([]model.Track(nil), tracks...), startIndex))
}

// OnSongsChanged replaces the mirrored playlist only. The server learns it
// with the next play request.
func (r *Remote) OnSongsChanged(tracks []model.Track) {
	r.local(func(s *model.PlaybackState) { replacePlaylist(s, tracks) })
}
