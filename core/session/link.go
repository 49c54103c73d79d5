package session

import (
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 8 << 20 // playlists may carry artwork
	sendBuffer   = 256
)

// link owns one websocket connection. All writes go through writePump so
// the connection has a single writer; reads happen on the owner's loop.
type link struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeCode int
}

func newLink(conn *websocket.Conn) *link {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &link{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

// enqueue hands a frame to the write pump without blocking. It reports
// false when the link is closed or its buffer is full.
func (l *link) enqueue(frame []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- frame:
		return true
	default:
		return false
	}
}

// close asks the write pump to send a close frame with code and hang up.
func (l *link) close(code int) {
	l.closeOnce.Do(func() {
		l.closeCode = code
		close(l.done)
	})
}

func (l *link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (l *link) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case frame := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !l.closed() {
					logger.Warn("websocket write failed", logger.ErrorField(err))
				}
				l.close(websocket.CloseAbnormalClosure)
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.close(websocket.CloseAbnormalClosure)
				return
			}

		case <-l.done:
			if l.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(l.closeCode, "")
				l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// orderlyClose reports read errors that mean the peer hung up on purpose.
func orderlyClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
