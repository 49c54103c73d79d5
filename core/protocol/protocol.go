// Package protocol defines the frames exchanged on the /player control
// channel: commands flow from controllers to the server, updates flow back.
// Every frame is a JSON envelope tagged by its type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DrUlysses/Kristine-sub000/model"
)

var (
	// ErrUnknownType is returned for frames whose tag is not part of the
	// protocol. Such frames are never acted on.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when a known tag carries unusable data.
	ErrInvalidPayload = errors.New("invalid message payload")
)

// CommandType tags a client to server message.
type CommandType string

const (
	CmdPlay        CommandType = "PLAY"
	CmdPause       CommandType = "PAUSE"
	CmdResume      CommandType = "RESUME"
	CmdNext        CommandType = "NEXT"
	CmdPrevious    CommandType = "PREVIOUS"
	CmdSetPlaylist CommandType = "SET_PLAYLIST"
)

func (t CommandType) valid() bool {
	switch t {
	case CmdPlay, CmdPause, CmdResume, CmdNext, CmdPrevious, CmdSetPlaylist:
		return true
	}
	return false
}

// UpdateType tags a server to client message.
type UpdateType string

const (
	UpdNowPlaying    UpdateType = "NOW_PLAYING"
	UpdPlaybackState UpdateType = "PLAYBACK_STATE"
)

func (t UpdateType) valid() bool {
	return t == UpdNowPlaying || t == UpdPlaybackState
}

// Command is a controller intent. The server alone decides the resulting
// state. Song is set for PLAY; Songs and CurrentSongIndex for SET_PLAYLIST.
type Command struct {
	Type             CommandType
	Song             *model.Track
	Songs            []model.Track
	CurrentSongIndex int
}

// Update is a state change broadcast by the server. Seq grows by one for
// every update a server produces. Song is nil when nothing is playing.
type Update struct {
	Type      UpdateType
	Seq       uint64
	Song      *model.Track
	IsPlaying bool
}

// envelope is the wire frame shared by both directions.
type envelope struct {
	Type      string          `json:"type"`
	Seq       uint64          `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type songData struct {
	Song *model.Track `json:"song"`
}

type setPlaylistData struct {
	Songs            []model.Track `json:"songs"`
	CurrentSongIndex int           `json:"currentSongIndex"`
}

type playbackStateData struct {
	IsPlaying bool `json:"isPlaying"`
}

func Play(track model.Track) Command { return Command{Type: CmdPlay, Song: &track} }
func Pause() Command                 { return Command{Type: CmdPause} }
func Resume() Command                { return Command{Type: CmdResume} }
func Next() Command                  { return Command{Type: CmdNext} }
func Previous() Command              { return Command{Type: CmdPrevious} }

// SetPlaylist replaces the server playlist and starts at index.
func SetPlaylist(tracks []model.Track, index int) Command {
	return Command{Type: CmdSetPlaylist, Songs: tracks, CurrentSongIndex: index}
}

// SetPlaylistFor builds SET_PLAYLIST starting at current's position so the
// peer can replace its playlist and begin playback in one step.
func SetPlaylistFor(tracks []model.Track, current model.Track) (Command, error) {
	idx := model.IndexOf(tracks, current.Path)
	if idx < 0 {
		return Command{}, fmt.Errorf("%w: %q is not in the playlist", ErrInvalidPayload, current.Path)
	}
	return SetPlaylist(tracks, idx), nil
}

// NowPlaying reports the current track; nil means nothing is loaded.
func NowPlaying(track *model.Track) Update {
	if track != nil {
		t := *track
		track = &t
	}
	return Update{Type: UpdNowPlaying, Song: track}
}

// PlaybackState reports whether the server is playing.
func PlaybackState(isPlaying bool) Update {
	return Update{Type: UpdPlaybackState, IsPlaying: isPlaying}
}

// EncodeCommand serializes cmd into a frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	if !cmd.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cmd.Type)
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	env := envelope{Type: string(cmd.Type), Timestamp: time.Now().UnixMilli()}
	var payload interface{}
	switch cmd.Type {
	case CmdPlay:
		payload = songData{Song: cmd.Song}
	case CmdSetPlaylist:
		payload = setPlaylistData{Songs: cmd.Songs, CurrentSongIndex: cmd.CurrentSongIndex}
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", cmd.Type, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeCommand parses a frame. Unknown tags and unusable payloads fail.
func DecodeCommand(frame []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	cmd := Command{Type: CommandType(env.Type)}
	if !cmd.Type.valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	switch cmd.Type {
	case CmdPlay:
		var d songData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Command{}, err
		}
		cmd.Song = d.Song
	case CmdSetPlaylist:
		var d setPlaylistData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Command{}, err
		}
		cmd.Songs = d.Songs
		cmd.CurrentSongIndex = d.CurrentSongIndex
	}

	if err := cmd.validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// validate rejects commands that cannot be applied. An out of range
// SET_PLAYLIST index is refused rather than clamped.
func (c Command) validate() error {
	switch c.Type {
	case CmdPlay:
		if c.Song == nil {
			return fmt.Errorf("%w: PLAY without song", ErrInvalidPayload)
		}
	case CmdSetPlaylist:
		if c.CurrentSongIndex < 0 || c.CurrentSongIndex >= len(c.Songs) {
			return fmt.Errorf("%w: index %d outside playlist of %d",
				ErrInvalidPayload, c.CurrentSongIndex, len(c.Songs))
		}
	}
	return nil
}

// EncodeUpdate serializes upd into a frame.
func EncodeUpdate(upd Update) ([]byte, error) {
	if !upd.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, upd.Type)
	}

	var payload interface{}
	switch upd.Type {
	case UpdNowPlaying:
		payload = songData{Song: upd.Song}
	case UpdPlaybackState:
		payload = playbackStateData{IsPlaying: upd.IsPlaying}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", upd.Type, err)
	}

	return json.Marshal(envelope{
		Type:      string(upd.Type),
		Seq:       upd.Seq,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// DecodeUpdate parses a frame. Unknown tags fail.
func DecodeUpdate(frame []byte) (Update, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	upd := Update{Type: UpdateType(env.Type), Seq: env.Seq}
	switch upd.Type {
	case UpdNowPlaying:
		var d songData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Update{}, err
		}
		upd.Song = d.Song
	case UpdPlaybackState:
		var d playbackStateData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Update{}, err
		}
		upd.IsPlaying = d.IsPlaying
	default:
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return upd, nil
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
