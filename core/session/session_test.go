package session

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/metrics"
	"github.com/DrUlysses/Kristine-sub000/model"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"
)

type recordingDispatcher struct {
	mu         sync.Mutex
	calls      []string
	songs      []model.Track
	startIndex int
	ch         chan string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{ch: make(chan string, 32)}
}

func (d *recordingDispatcher) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	d.ch <- call
}

func (d *recordingDispatcher) OnPlaySongCommand(track model.Track) { d.record("play:" + track.Path) }
func (d *recordingDispatcher) OnPauseCommand()                     { d.record("pause") }
func (d *recordingDispatcher) OnResumeCommand()                    { d.record("resume") }
func (d *recordingDispatcher) OnNextCommand()                      { d.record("next") }
func (d *recordingDispatcher) OnPreviousCommand()                  { d.record("previous") }
func (d *recordingDispatcher) OnPlaylistChanged(tracks []model.Track, startIndex int) {
	d.mu.Lock()
	d.songs = tracks
	d.startIndex = startIndex
	d.mu.Unlock()
	d.record("playlist:" + strconv.Itoa(len(tracks)) + "@" + strconv.Itoa(startIndex))
}

func (d *recordingDispatcher) next(t *testing.T) string {
	t.Helper()
	select {
	case c := <-d.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return ""
	}
}

func startHub(t *testing.T, d Dispatcher) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(d)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dialRaw(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + PlayerPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func hostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split %q: %v", srv.URL, err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func readUpdate(t *testing.T, conn *websocket.Conn) protocol.Update {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	upd, err := protocol.DecodeUpdate(frame)
	if err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return upd
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := newHistory(HistorySize)
	if _, ok := h.latest(); ok {
		t.Fatal("empty history reported a latest entry")
	}
	for i := 1; i <= HistorySize+5; i++ {
		h.push(protocol.Update{Type: protocol.UpdPlaybackState, Seq: uint64(i)})
	}
	if h.len() != HistorySize {
		t.Fatalf("len = %d, want %d", h.len(), HistorySize)
	}
	snap := h.snapshot()
	if snap[0].Seq != 6 || snap[len(snap)-1].Seq != HistorySize+5 {
		t.Errorf("snapshot spans %d..%d, want 6..%d", snap[0].Seq, snap[len(snap)-1].Seq, HistorySize+5)
	}
	if latest, _ := h.latest(); latest.Seq != HistorySize+5 {
		t.Errorf("latest seq = %d", latest.Seq)
	}
	h.clear()
	if h.len() != 0 {
		t.Errorf("len after clear = %d", h.len())
	}
}

func TestHubReplaysLatestUpdateToLateJoiner(t *testing.T) {
	hub, srv := startHub(t, nil)

	a := model.Track{Title: "A", Path: "/a.mp3"}
	b := model.Track{Title: "B", Path: "/b.mp3"}
	hub.SendPlayerUpdate(protocol.NowPlaying(&a))
	hub.SendPlayerUpdate(protocol.PlaybackState(true))
	hub.SendPlayerUpdate(protocol.NowPlaying(&b))

	conn := dialRaw(t, srv)
	first := readUpdate(t, conn)
	if first.Type != protocol.UpdNowPlaying || first.Seq != 3 || first.Song == nil || first.Song.Path != b.Path {
		t.Fatalf("replay = %+v, want NOW_PLAYING(B) seq 3", first)
	}

	hub.SendPlayerUpdate(protocol.PlaybackState(false))
	second := readUpdate(t, conn)
	if second.Type != protocol.UpdPlaybackState || second.Seq != 4 || second.IsPlaying {
		t.Fatalf("next update = %+v, want PLAYBACK_STATE(false) seq 4", second)
	}

	if got := len(hub.History()); got != 4 {
		t.Errorf("history len = %d, want 4", got)
	}
}

func TestHubNoReplayBeforeFirstUpdate(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialRaw(t, srv)
	waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })

	hub.SendPlayerUpdate(protocol.PlaybackState(true))
	upd := readUpdate(t, conn)
	if upd.Seq != 1 {
		t.Fatalf("first frame seq = %d, want 1", upd.Seq)
	}
}

func TestHubDispatchesCommandsAndSkipsMalformed(t *testing.T) {
	d := newRecordingDispatcher()
	_, srv := startHub(t, d)
	conn := dialRaw(t, srv)

	send := func(frame []byte) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send([]byte("not json"))
	send([]byte(`{"type":"SEEK","timestamp":1}`))

	frame, err := protocol.EncodeCommand(protocol.Pause())
	if err != nil {
		t.Fatal(err)
	}
	send(frame)
	if got := d.next(t); got != "pause" {
		t.Fatalf("first dispatch = %q, want pause", got)
	}

	tracks := []model.Track{{Title: "A", Path: "/a"}, {Title: "B", Path: "/b"}}
	frame, err = protocol.EncodeCommand(protocol.SetPlaylist(tracks, 1))
	if err != nil {
		t.Fatal(err)
	}
	send(frame)
	if got := d.next(t); got != "playlist:2@1" {
		t.Fatalf("dispatch = %q, want playlist:2@1", got)
	}

	// A repeated path keeps the index the controller chose.
	repeated := []model.Track{tracks[0], tracks[1], tracks[0]}
	frame, err = protocol.EncodeCommand(protocol.SetPlaylist(repeated, 2))
	if err != nil {
		t.Fatal(err)
	}
	send(frame)
	if got := d.next(t); got != "playlist:3@2" {
		t.Fatalf("dispatch = %q, want playlist:3@2", got)
	}

	for _, cmd := range []protocol.Command{protocol.Resume(), protocol.Next(), protocol.Previous(), protocol.Play(tracks[0])} {
		frame, err := protocol.EncodeCommand(cmd)
		if err != nil {
			t.Fatal(err)
		}
		send(frame)
	}
	for _, want := range []string{"resume", "next", "previous", "play:/a"} {
		if got := d.next(t); got != want {
			t.Fatalf("dispatch = %q, want %q", got, want)
		}
	}
}

func TestHubCloseDisconnectsSessions(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dialRaw(t, srv)
	waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })
	hub.SendPlayerUpdate(protocol.PlaybackState(true))

	hub.Close()
	if len(hub.History()) != 0 {
		t.Error("history survived Close")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("read error = %v, want going away close", err)
			}
			break
		}
	}
}

type stateRecorder struct {
	ch chan bool
}

func (r stateRecorder) handle(connected bool) { r.ch <- connected }

func (r stateRecorder) expect(t *testing.T, want bool) {
	t.Helper()
	select {
	case got := <-r.ch:
		if got != want {
			t.Fatalf("state change = %v, want %v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for state %v", want)
	}
}

func TestControlSessionDeliversUpdatesInOrder(t *testing.T) {
	hub, srv := startHub(t, nil)
	host, port := hostPort(t, srv)

	updates := make(chan protocol.Update, 8)
	states := stateRecorder{ch: make(chan bool, 4)}

	cs := NewControlSession()
	cs.Connect(host, port, func(u protocol.Update) { updates <- u }, states.handle)
	states.expect(t, true)
	if cs.State() != Connected {
		t.Fatalf("state = %v, want connected", cs.State())
	}
	waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })

	a := model.Track{Title: "A", Path: "/a"}
	hub.SendPlayerUpdate(protocol.NowPlaying(&a))
	hub.SendPlayerUpdate(protocol.PlaybackState(true))
	hub.SendPlayerUpdate(protocol.PlaybackState(false))

	for want := uint64(1); want <= 3; want++ {
		select {
		case u := <-updates:
			if u.Seq != want {
				t.Fatalf("seq = %d, want %d", u.Seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d", want)
		}
	}

	cs.Disconnect()
	states.expect(t, false)
	if addr, p := cs.Peer(); addr != "" || p != 0 {
		t.Errorf("peer after disconnect = %s:%d", addr, p)
	}
	waitFor(t, "session removal", func() bool { return len(hub.Sessions()) == 0 })
}

func TestControlSessionSendsCommands(t *testing.T) {
	d := newRecordingDispatcher()
	hub, srv := startHub(t, d)
	host, port := hostPort(t, srv)

	states := stateRecorder{ch: make(chan bool, 4)}
	cs := NewControlSession()
	cs.Connect(host, port, nil, states.handle)
	states.expect(t, true)
	waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })

	if err := cs.Send(protocol.Next()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := d.next(t); got != "next" {
		t.Fatalf("dispatch = %q, want next", got)
	}
	cs.Disconnect()
}

func TestControlSessionSendWithoutConnection(t *testing.T) {
	cs := NewControlSession()
	if err := cs.Send(protocol.Pause()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestControlSessionServerCloseNotifies(t *testing.T) {
	hub, srv := startHub(t, nil)
	host, port := hostPort(t, srv)

	states := stateRecorder{ch: make(chan bool, 4)}
	cs := NewControlSession()
	cs.Connect(host, port, nil, states.handle)
	states.expect(t, true)
	waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })

	hub.Close()
	states.expect(t, false)
	waitFor(t, "disconnected state", func() bool { return cs.State() == Disconnected })
}

func TestControlSessionDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	states := stateRecorder{ch: make(chan bool, 2)}
	cs := NewControlSession()
	cs.Connect("127.0.0.1", port, nil, states.handle)
	states.expect(t, false)
	if cs.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", cs.State())
	}
}

func TestControlSessionConnectWhileBusyIsNoop(t *testing.T) {
	t.Run("connecting", func(t *testing.T) {
		// Accepts TCP but never answers the upgrade, so the dial stays
		// in flight until it is cancelled.
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		go func() {
			var held []net.Conn
			defer func() {
				for _, c := range held {
					c.Close()
				}
			}()
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				held = append(held, conn)
			}
		}()
		port := ln.Addr().(*net.TCPAddr).Port

		first := stateRecorder{ch: make(chan bool, 4)}
		second := stateRecorder{ch: make(chan bool, 4)}
		cs := NewControlSession()
		cs.Connect("127.0.0.1", port, nil, first.handle)
		if cs.State() != Connecting {
			t.Fatalf("state = %v, want connecting", cs.State())
		}

		cs.Connect("127.0.0.2", port+1, nil, second.handle)
		if addr, p := cs.Peer(); addr != "127.0.0.1" || p != port {
			t.Fatalf("peer = %s:%d, want the first target", addr, p)
		}
		if cs.State() != Connecting {
			t.Fatalf("state = %v, want connecting", cs.State())
		}

		cs.Disconnect()
		first.expect(t, false)
		select {
		case got := <-second.ch:
			t.Fatalf("ignored Connect reported %v", got)
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("connected", func(t *testing.T) {
		hub, srv := startHub(t, nil)
		host, port := hostPort(t, srv)

		updates := make(chan protocol.Update, 4)
		first := stateRecorder{ch: make(chan bool, 4)}
		second := stateRecorder{ch: make(chan bool, 4)}
		cs := NewControlSession()
		cs.Connect(host, port, func(u protocol.Update) { updates <- u }, first.handle)
		first.expect(t, true)
		waitFor(t, "session registration", func() bool { return len(hub.Sessions()) == 1 })

		cs.Connect(host, port, func(protocol.Update) { t.Error("ignored Connect received an update") }, second.handle)
		if cs.State() != Connected {
			t.Fatalf("state = %v, want connected", cs.State())
		}

		hub.SendPlayerUpdate(protocol.PlaybackState(true))
		select {
		case u := <-updates:
			if u.Seq != 1 {
				t.Fatalf("seq = %d, want 1", u.Seq)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for update")
		}
		if n := len(hub.Sessions()); n != 1 {
			t.Fatalf("sessions = %d, want 1", n)
		}

		cs.Disconnect()
		first.expect(t, false)
		select {
		case got := <-second.ch:
			t.Fatalf("ignored Connect reported %v", got)
		case <-time.After(200 * time.Millisecond):
		}
	})
}

func sessionsActive(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.SessionsActive.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}

func TestSessionsGaugeSumsAcrossHubs(t *testing.T) {
	base := sessionsActive(t)

	hubA, srvA := startHub(t, nil)
	hubB, srvB := startHub(t, nil)
	dialRaw(t, srvA)
	dialRaw(t, srvA)
	dialRaw(t, srvB)
	waitFor(t, "session registration", func() bool {
		return len(hubA.Sessions()) == 2 && len(hubB.Sessions()) == 1
	})
	if got := sessionsActive(t) - base; got != 3 {
		t.Fatalf("gauge delta = %v, want 3", got)
	}

	hubA.Close()
	waitFor(t, "gauge to drop", func() bool { return sessionsActive(t)-base == 1 })

	hubB.Close()
	waitFor(t, "gauge to drop", func() bool { return sessionsActive(t)-base == 0 })
}
