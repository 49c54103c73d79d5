package player

import (
	"sync"

	"github.com/DrUlysses/Kristine-sub000/logger"
)

// Engine is the audio backend a Local coordinator drives.
type Engine interface {
	SetPlaylist(paths []string)
	Play(path string)
	Pause()
	Resume()
	Stop()
	Seek(positionMs int64)
}

// EngineEvents receives what the engine reports back.
type EngineEvents interface {
	OnIsPlayingChanged(isPlaying bool)
	OnCurrentTrackChanged(path string)
}

// LogEngine is a headless engine: it plays nothing, logs every call and
// reports state changes as a real engine would.
type LogEngine struct {
	mu         sync.Mutex
	events     EngineEvents
	playlist   []string
	current    string
	playing    bool
	positionMs int64
}

func NewLogEngine() *LogEngine {
	return &LogEngine{}
}

// SetEvents wires the engine's callbacks.
func (e *LogEngine) SetEvents(events EngineEvents) {
	e.mu.Lock()
	e.events = events
	e.mu.Unlock()
}

func (e *LogEngine) SetPlaylist(paths []string) {
	e.mu.Lock()
	e.playlist = append([]string(nil), paths...)
	e.mu.Unlock()
	logger.Debug("engine playlist set", logger.Int("tracks", len(paths)))
}

func (e *LogEngine) Play(path string) {
	e.mu.Lock()
	changed := e.current != path
	e.current = path
	e.positionMs = 0
	e.mu.Unlock()

	logger.Info("engine play", logger.String("path", path))
	if changed {
		e.emitTrack(path)
	}
	e.setPlaying(true)
}

func (e *LogEngine) Pause() {
	logger.Info("engine pause")
	e.setPlaying(false)
}

func (e *LogEngine) Resume() {
	e.mu.Lock()
	has := e.current != ""
	e.mu.Unlock()
	if !has {
		return
	}
	logger.Info("engine resume")
	e.setPlaying(true)
}

func (e *LogEngine) Stop() {
	logger.Info("engine stop")
	e.mu.Lock()
	e.positionMs = 0
	e.mu.Unlock()
	e.setPlaying(false)
}

func (e *LogEngine) Seek(positionMs int64) {
	e.mu.Lock()
	e.positionMs = positionMs
	e.mu.Unlock()
	logger.Info("engine seek", logger.Int64("positionMs", positionMs))
}

// Current returns the loaded path and whether it is playing.
func (e *LogEngine) Current() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.playing
}

func (e *LogEngine) setPlaying(playing bool) {
	e.mu.Lock()
	changed := e.playing != playing
	e.playing = playing
	events := e.events
	e.mu.Unlock()

	if changed && events != nil {
		events.OnIsPlayingChanged(playing)
	}
}

func (e *LogEngine) emitTrack(path string) {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events != nil {
		events.OnCurrentTrackChanged(path)
	}
}
