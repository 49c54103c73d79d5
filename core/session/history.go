package session

import "github.com/DrUlysses/Kristine-sub000/core/protocol"

// HistorySize is how many recent updates a server remembers.
const HistorySize = 100

// history is a fixed ring of the most recent updates. Callers serialize
// access.
type history struct {
	buf   []protocol.Update
	start int
	n     int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = HistorySize
	}
	return &history{buf: make([]protocol.Update, size)}
}

// push appends upd, overwriting the oldest entry when full.
func (h *history) push(upd protocol.Update) {
	idx := (h.start + h.n) % len(h.buf)
	h.buf[idx] = upd
	if h.n < len(h.buf) {
		h.n++
		return
	}
	h.start = (h.start + 1) % len(h.buf)
}

// latest returns the newest entry.
func (h *history) latest() (protocol.Update, bool) {
	if h.n == 0 {
		return protocol.Update{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

// snapshot copies the entries oldest first.
func (h *history) snapshot() []protocol.Update {
	out := make([]protocol.Update, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) len() int { return h.n }

func (h *history) clear() {
	for i := range h.buf {
		h.buf[i] = protocol.Update{}
	}
	h.start, h.n = 0, 0
}
