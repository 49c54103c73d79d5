package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/metrics"

	"github.com/gorilla/websocket"
)

// PlayerPath is the control channel endpoint on every server.
const PlayerPath = "/player"

// ErrNotConnected is returned by Send when no connection is up. Commands are
// not queued across reconnects.
var ErrNotConnected = errors.New("control session not connected")

// State of a ControlSession.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// UpdateHandler receives server updates in wire order.
type UpdateHandler func(protocol.Update)

// StateHandler is told when the connection comes up (true) or goes away
// (false).
type StateHandler func(connected bool)

// ControlSession is the client-role connection to one server. Reconnecting
// is left to the caller.
type ControlSession struct {
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	address string
	port    int
	gen     uint64
	cancel  context.CancelFunc
	link    *link
}

// NewControlSession creates a disconnected session.
func NewControlSession() *ControlSession {
	return &ControlSession{
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (s *ControlSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the address and port of the current or pending connection.
func (s *ControlSession) Peer() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.port
}

// Connect dials ws://address:port/player in the background and returns at
// once. It does nothing unless the session is disconnected.
func (s *ControlSession) Connect(address string, port int, onUpdate UpdateHandler, onStateChange StateHandler) {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		logger.Debug("connect ignored, session busy",
			logger.String("state", s.state.String()))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	gen := s.gen
	s.state = Connecting
	s.address, s.port = address, port
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, gen, address, port, onUpdate, onStateChange)
}

// Disconnect sends a normal closure, drops the connection and forgets the
// peer. Safe to call when disconnected.
func (s *ControlSession) Disconnect() {
	s.mu.Lock()
	cancel, l := s.cancel, s.link
	s.reset()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.close(websocket.CloseNormalClosure)
	}
}

// reset must be called with s.mu held.
func (s *ControlSession) reset() {
	s.state = Disconnected
	s.address, s.port = "", 0
	s.cancel = nil
	s.link = nil
}

// Send serializes cmd and queues it for the write pump. Without a live
// connection the command is logged and dropped.
func (s *ControlSession) Send(cmd protocol.Command) error {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		logger.Warn("dropping unencodable command",
			logger.String("type", string(cmd.Type)),
			logger.ErrorField(err))
		return err
	}

	s.mu.Lock()
	l := s.link
	s.mu.Unlock()

	if l == nil {
		logger.Warn("command dropped, not connected", logger.String("type", string(cmd.Type)))
		return ErrNotConnected
	}
	if !l.enqueue(frame) {
		logger.Warn("command dropped, send queue unavailable", logger.String("type", string(cmd.Type)))
		return ErrNotConnected
	}
	return nil
}

func (s *ControlSession) run(ctx context.Context, gen uint64, address string, port int, onUpdate UpdateHandler, onStateChange StateHandler) {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(address, strconv.Itoa(port)),
		Path:   PlayerPath,
	}

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("control session dial failed",
				logger.String("url", u.String()),
				logger.ErrorField(err))
		}
		s.finish(gen, nil, onStateChange)
		return
	}

	l := newLink(conn)
	s.mu.Lock()
	if s.gen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		s.finish(gen, nil, onStateChange)
		return
	}
	s.link = l
	s.state = Connected
	s.mu.Unlock()

	logger.Info("control session connected", logger.String("url", u.String()))
	if onStateChange != nil {
		onStateChange(true)
	}

	go l.writePump()
	s.readLoop(l, onUpdate)
	s.finish(gen, l, onStateChange)
}

func (s *ControlSession) readLoop(l *link, onUpdate UpdateHandler) {
	for {
		_, frame, err := l.conn.ReadMessage()
		if err != nil {
			switch {
			case l.closed():
				logger.Debug("control session closed locally")
			case orderlyClose(err):
				logger.Info("control session closed by server")
			default:
				logger.Error("control session read failed", logger.ErrorField(err))
			}
			l.close(websocket.CloseNormalClosure)
			return
		}

		upd, err := protocol.DecodeUpdate(frame)
		if err != nil {
			metrics.FrameErrors.WithLabelValues("client").Inc()
			logger.Warn("skipping malformed update", logger.ErrorField(err))
			continue
		}
		if onUpdate != nil {
			onUpdate(upd)
		}
	}
}

// finish moves the session back to Disconnected if gen is still current and
// reports the loss. Attempts superseded by a newer Connect stay silent.
func (s *ControlSession) finish(gen uint64, l *link, onStateChange StateHandler) {
	s.mu.Lock()
	current := s.gen == gen
	if current && (s.link == l || s.link == nil) {
		s.reset()
	}
	s.mu.Unlock()

	if current && onStateChange != nil {
		onStateChange(false)
	}
}

func (s *ControlSession) String() string {
	addr, port := s.Peer()
	return fmt.Sprintf("control session %s:%d (%s)", addr, port, s.State())
}
