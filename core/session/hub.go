// Package session carries the /player control channel. Hub is the server
// side that accepts controllers and fans updates out to them;
// ControlSession is the client side that dials one server.
package session

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/metrics"
	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dispatcher receives the commands controllers send. The local playback
// coordinator satisfies it.
type Dispatcher interface {
	OnPlaySongCommand(track model.Track)
	OnPauseCommand()
	OnResumeCommand()
	OnNextCommand()
	OnPreviousCommand()
	OnPlaylistChanged(tracks []model.Track, startIndex int)
}

// Session is one accepted controller connection.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	link *link

	mu             sync.Mutex
	lastActivityAt time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivityAt = now
	s.mu.Unlock()
}

// LastActivityAt is the time the last frame arrived from the controller.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// SessionInfo is a read-only view of a Session.
type SessionInfo struct {
	ID             string    `json:"id"`
	RemoteAddr     string    `json:"remoteAddr"`
	ConnectedAt    time.Time `json:"connectedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Hub is the session table of one running server. The same lock guards the
// table, the replay history and the sequence counter, so a new session
// cannot miss an update published while it registers.
type Hub struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	history  *history
	seq      uint64
	closed   bool
}

// NewHub creates a hub that forwards commands to dispatcher.
func NewHub(dispatcher Dispatcher) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: make(map[string]*Session),
		history:  newHistory(HistorySize),
	}
}

// ServeWS upgrades the request and runs the session until either side
// closes it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.ErrorField(err))
		return
	}

	now := time.Now()
	s := &Session{
		ID:             uuid.New().String(),
		RemoteAddr:     r.RemoteAddr,
		ConnectedAt:    now,
		link:           newLink(conn),
		lastActivityAt: now,
	}

	if !h.register(s) {
		s.link.close(websocket.CloseGoingAway)
		go s.link.writePump()
		return
	}
	go s.link.writePump()

	h.readLoop(s)
	h.unregister(s)
}

// register adds s and queues the latest update for it.
func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.sessions[s.ID] = s
	metrics.SessionsActive.Inc()

	logger.Info("controller connected",
		logger.String("session", s.ID),
		logger.String("remote", s.RemoteAddr),
		logger.Int("sessions", len(h.sessions)))

	if upd, ok := h.history.latest(); ok {
		frame, err := protocol.EncodeUpdate(upd)
		if err != nil {
			logger.Error("encode replay failed", logger.ErrorField(err))
		} else if !s.link.enqueue(frame) {
			logger.Warn("replay dropped", logger.String("session", s.ID))
		}
	}
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	removed := false
	if cur, ok := h.sessions[s.ID]; ok && cur == s {
		delete(h.sessions, s.ID)
		removed = true
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if removed {
		metrics.SessionsActive.Dec()
	}
	s.link.close(websocket.CloseNormalClosure)
	logger.Info("controller disconnected",
		logger.String("session", s.ID),
		logger.Int("sessions", n))
}

func (h *Hub) readLoop(s *Session) {
	for {
		_, frame, err := s.link.conn.ReadMessage()
		if err != nil {
			switch {
			case s.link.closed():
			case orderlyClose(err):
				logger.Debug("controller closed session", logger.String("session", s.ID))
			default:
				logger.Warn("session read failed",
					logger.String("session", s.ID),
					logger.ErrorField(err))
			}
			return
		}
		s.touch(time.Now())

		cmd, err := protocol.DecodeCommand(frame)
		if err != nil {
			metrics.FrameErrors.WithLabelValues("server").Inc()
			logger.Warn("skipping malformed command",
				logger.String("session", s.ID),
				logger.ErrorField(err))
			continue
		}
		metrics.CommandsReceived.WithLabelValues(string(cmd.Type)).Inc()
		h.dispatch(cmd)
	}
}

func (h *Hub) dispatch(cmd protocol.Command) {
	if h.dispatcher == nil {
		return
	}
	switch cmd.Type {
	case protocol.CmdPlay:
		h.dispatcher.OnPlaySongCommand(*cmd.Song)
	case protocol.CmdPause:
		h.dispatcher.OnPauseCommand()
	case protocol.CmdResume:
		h.dispatcher.OnResumeCommand()
	case protocol.CmdNext:
		h.dispatcher.OnNextCommand()
	case protocol.CmdPrevious:
		h.dispatcher.OnPreviousCommand()
	case protocol.CmdSetPlaylist:
		h.dispatcher.OnPlaylistChanged(cmd.Songs, cmd.CurrentSongIndex)
	}
}

// SendPlayerUpdate stamps upd with the next sequence id, records it and
// queues it on every session. A session whose queue is unavailable is only
// logged; its own read loop removes it.
func (h *Hub) SendPlayerUpdate(upd protocol.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.seq++
	upd.Seq = h.seq
	h.history.push(upd)

	frame, err := protocol.EncodeUpdate(upd)
	if err != nil {
		logger.Error("encode update failed",
			logger.String("type", string(upd.Type)),
			logger.ErrorField(err))
		return
	}
	metrics.UpdatesPublished.WithLabelValues(string(upd.Type)).Inc()

	for id, s := range h.sessions {
		if !s.link.enqueue(frame) {
			logger.Warn("update not delivered",
				logger.String("session", id),
				logger.Uint64("seq", upd.Seq))
		}
	}
}

// Sessions lists the connected controllers ordered by connect time.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	out := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, SessionInfo{
			ID:             s.ID,
			RemoteAddr:     s.RemoteAddr,
			ConnectedAt:    s.ConnectedAt,
			LastActivityAt: s.LastActivityAt(),
		})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// History copies the replay buffer, oldest first.
func (h *Hub) History() []protocol.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.snapshot()
}

// Close disconnects every session and forgets the history. The hub accepts
// no sessions afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*Session)
	h.history.clear()
	h.closed = true
	h.mu.Unlock()

	for _, s := range sessions {
		s.link.close(websocket.CloseGoingAway)
	}
	metrics.SessionsActive.Sub(float64(len(sessions)))
}
