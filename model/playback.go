package model

import (
	"fmt"
	"strings"
)

// RepeatMode controls what happens at the ends of the playlist.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// Next cycles None -> All -> One -> None.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

func (m RepeatMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RepeatMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none", "":
		*m = RepeatNone
	case "all":
		*m = RepeatAll
	case "one":
		*m = RepeatOne
	default:
		return fmt.Errorf("unknown repeat mode %q", text)
	}
	return nil
}

// PlaybackState is the canonical player state of one application instance.
// TrackIndex is -1 when nothing is selected.
type PlaybackState struct {
	CurrentTrack     *Track     `json:"currentTrack"`
	IsPlaying        bool       `json:"isPlaying"`
	TrackIndex       int        `json:"trackIndex"`
	Playlist         []Track    `json:"playlist"`
	ShuffleEnabled   bool       `json:"shuffleEnabled"`
	RepeatMode       RepeatMode `json:"repeatMode"`
	IsRemoteFollower bool       `json:"isRemoteFollower"`
}

// NewPlaybackState returns an empty, stopped state.
func NewPlaybackState() PlaybackState {
	return PlaybackState{TrackIndex: -1}
}

// Clone copies the state so callers cannot reach the owner's slices.
func (s PlaybackState) Clone() PlaybackState {
	out := s
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		out.CurrentTrack = &t
	}
	if s.Playlist != nil {
		out.Playlist = append([]Track(nil), s.Playlist...)
	}
	return out
}

// HasIndex reports whether TrackIndex points into the playlist.
func (s PlaybackState) HasIndex() bool {
	return len(s.Playlist) > 0 && s.TrackIndex >= 0 && s.TrackIndex < len(s.Playlist)
}

// Validate checks the index/current-track invariant.
func (s PlaybackState) Validate() error {
	if s.TrackIndex != -1 && !s.HasIndex() {
		return fmt.Errorf("track index %d out of range for playlist of %d", s.TrackIndex, len(s.Playlist))
	}
	if s.HasIndex() && s.CurrentTrack != nil && !s.Playlist[s.TrackIndex].SameAs(*s.CurrentTrack) {
		return fmt.Errorf("current track %q differs from playlist[%d] %q",
			s.CurrentTrack.Path, s.TrackIndex, s.Playlist[s.TrackIndex].Path)
	}
	return nil
}
