package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/DrUlysses/Kristine-sub000/model"
)

var (
	trackA = model.Track{Title: "Aurora", Artist: "Kite", Album: "Dust", Path: "/music/aurora.mp3", Duration: 241}
	trackB = model.Track{Title: "Bellwether", Artist: "Kite", Path: "/music/bellwether.mp3", Artwork: []byte{0x89, 'P', 'N', 'G'}}
)

func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		Play(trackA),
		Pause(),
		Resume(),
		Next(),
		Previous(),
		SetPlaylist([]model.Track{trackA, trackB}, 1),
	}
	for _, cmd := range commands {
		frame, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.Type, err)
		}
		got, err := DecodeCommand(frame)
		if err != nil {
			t.Fatalf("decode %s: %v", cmd.Type, err)
		}
		if !reflect.DeepEqual(got, cmd) {
			t.Errorf("round trip %s:\n got  %+v\n want %+v", cmd.Type, got, cmd)
		}
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	updates := []Update{
		NowPlaying(&trackB),
		NowPlaying(nil),
		PlaybackState(true),
		PlaybackState(false),
	}
	for i, upd := range updates {
		upd.Seq = uint64(i + 1)
		frame, err := EncodeUpdate(upd)
		if err != nil {
			t.Fatalf("encode %s: %v", upd.Type, err)
		}
		got, err := DecodeUpdate(frame)
		if err != nil {
			t.Fatalf("decode %s: %v", upd.Type, err)
		}
		if !reflect.DeepEqual(got, upd) {
			t.Errorf("round trip %s:\n got  %+v\n want %+v", upd.Type, got, upd)
		}
	}
}

func TestWireTags(t *testing.T) {
	frame, err := EncodeCommand(SetPlaylist([]model.Track{trackA}, 0))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"type":"SET_PLAYLIST"`, `"currentSongIndex":0`, `"songs":[`} {
		if !strings.Contains(string(frame), want) {
			t.Errorf("frame %s lacks %s", frame, want)
		}
	}

	frame, err = EncodeUpdate(PlaybackState(true))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(frame), `"type":"PLAYBACK_STATE"`) || !strings.Contains(string(frame), `"isPlaying":true`) {
		t.Errorf("unexpected update frame %s", frame)
	}
}

func TestDecodeFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"unknown command", `{"type":"EJECT","timestamp":1}`, ErrUnknownType},
		{"update tag on command channel", `{"type":"NOW_PLAYING","data":{"song":null}}`, ErrUnknownType},
		{"lowercase tag", `{"type":"play","data":{"song":{"path":"/x"}}}`, ErrUnknownType},
		{"not json", `PLAY`, ErrInvalidPayload},
		{"play without data", `{"type":"PLAY"}`, ErrInvalidPayload},
		{"play with null song", `{"type":"PLAY","data":{"song":null}}`, ErrInvalidPayload},
		{"index past end", `{"type":"SET_PLAYLIST","data":{"songs":[{"path":"/a"}],"currentSongIndex":1}}`, ErrInvalidPayload},
		{"negative index", `{"type":"SET_PLAYLIST","data":{"songs":[{"path":"/a"}],"currentSongIndex":-1}}`, ErrInvalidPayload},
		{"empty playlist", `{"type":"SET_PLAYLIST","data":{"songs":[],"currentSongIndex":0}}`, ErrInvalidPayload},
		{"wrong field type", `{"type":"SET_PLAYLIST","data":{"songs":"a","currentSongIndex":0}}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.frame))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := DecodeUpdate([]byte(`{"type":"VOLUME","data":{}}`)); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown update tag: err = %v", err)
	}
	if _, err := DecodeUpdate([]byte(`{"type":"PLAYBACK_STATE"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("missing data: err = %v", err)
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	if _, err := EncodeCommand(Command{Type: "SKIP"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v", err)
	}
	if _, err := EncodeCommand(SetPlaylist(nil, 0)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v", err)
	}
	if _, err := EncodeUpdate(Update{Type: "SEEK"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v", err)
	}
}

func TestSetPlaylistFor(t *testing.T) {
	cmd, err := SetPlaylistFor([]model.Track{trackA, trackB}, trackB)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Type != CmdSetPlaylist || cmd.CurrentSongIndex != 1 {
		t.Errorf("unexpected command %+v", cmd)
	}
	if _, err := SetPlaylistFor([]model.Track{trackA}, trackB); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("err = %v", err)
	}
}

func TestNowPlayingCopiesTrack(t *testing.T) {
	track := trackA
	upd := NowPlaying(&track)
	track.Title = "mutated"
	if upd.Song.Title != "Aurora" {
		t.Error("NowPlaying kept a reference to the caller's track")
	}
}
