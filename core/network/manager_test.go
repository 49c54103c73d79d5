package network

import (
	"net"
	"testing"
	"time"

	"github.com/DrUlysses/Kristine-sub000/config"
	"github.com/DrUlysses/Kristine-sub000/core/player"
	"github.com/DrUlysses/Kristine-sub000/core/session"
	"github.com/DrUlysses/Kristine-sub000/model"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func newTestManager(discoveryPort int) *Manager {
	return NewManager(Options{
		Discovery: config.DiscoveryConfig{
			Port:              discoveryPort,
			BroadcastInterval: 50 * time.Millisecond,
			SweepInterval:     50 * time.Millisecond,
			PeerTimeout:       time.Second,
		},
		Server:  config.ServerConfig{Discoverable: true},
		Engine:  player.NewLogEngine(),
		Targets: []string{"127.0.0.1"},
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDiscoverConnectAndFollow(t *testing.T) {
	discoveryPort := freeUDPPort(t)

	host := newTestManager(discoveryPort)
	defer host.Close()
	guest := newTestManager(discoveryPort)
	defer guest.Close()

	servers := make(chan model.ServerSet, 64)
	if err := guest.StartDiscovery(func(s model.ServerSet) {
		select {
		case servers <- s:
		default:
		}
	}); err != nil {
		t.Fatalf("start discovery: %v", err)
	}

	port, _, err := host.StartServer()
	if err != nil {
		t.Fatalf("start server: %v", err)
	}

	eventually(t, "beacon from host", func() bool {
		return guest.DiscoveredServers()["127.0.0.1"] == port
	})

	states := make(chan bool, 4)
	guest.ConnectToServer("127.0.0.1", port, func(c bool) { states <- c })
	select {
	case c := <-states:
		if !c {
			t.Fatal("connection failed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out connecting")
	}
	if !guest.Player().IsNetworkPlayer() || guest.ConnectionState() != session.Connected {
		t.Fatal("guest is not following after connect")
	}
	eventually(t, "host session", func() bool { return len(host.Server().Hub().Sessions()) == 1 })

	song := model.Track{Title: "Shared", Path: "/shared.mp3"}
	guest.Player().OnPlaySongCommand(song)

	eventually(t, "host playback", func() bool {
		s := host.Player().State()
		return s.CurrentTrack != nil && s.CurrentTrack.Path == song.Path && s.IsPlaying
	})
	eventually(t, "guest mirror", func() bool {
		s := guest.Player().State()
		return s.IsRemoteFollower && s.CurrentTrack != nil && s.CurrentTrack.Path == song.Path && s.IsPlaying
	})
	if guest.Player().Local().State().IsPlaying {
		t.Error("guest engine started while following")
	}

	host.StopServer()
	select {
	case c := <-states:
		if c {
			t.Fatal("unexpected reconnect")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("guest did not notice the server going away")
	}
	if guest.Player().IsNetworkPlayer() {
		t.Error("guest did not fall back to local playback")
	}
}

func TestCustomServerAndPlaylistErrors(t *testing.T) {
	m := newTestManager(freeUDPPort(t))
	defer m.Close()

	var got model.ServerSet
	m.ConnectToCustomServer("10.0.0.7", 4242, func(s model.ServerSet) { got = s })
	if got["10.0.0.7"] != 4242 || m.DiscoveredServers()["10.0.0.7"] != 4242 {
		t.Fatalf("custom server missing: %v", got)
	}

	tracks := []model.Track{{Path: "/a"}}
	if err := m.SendPlaylistToServer(tracks, model.Track{Path: "/b"}); err == nil {
		t.Error("playlist without the current track was accepted")
	}
	if err := m.SendPlaylistToServer(tracks, tracks[0]); err == nil {
		t.Error("send without a connection succeeded")
	}
}

func TestStartServerWithoutDiscovery(t *testing.T) {
	m := NewManager(Options{Engine: player.NewLogEngine()})
	defer m.Close()

	port, _, err := m.StartServer()
	if err != nil || port == 0 {
		t.Fatalf("start = %d, %v", port, err)
	}
	m.mu.Lock()
	b := m.broadcaster
	m.mu.Unlock()
	if b != nil {
		t.Error("non-discoverable server is broadcasting")
	}

	m.Player().OnPlaylistChanged([]model.Track{{Title: "A", Path: "/a"}}, 0)
	eventually(t, "history entry", func() bool { return len(m.Server().Hub().History()) == 2 })
}
