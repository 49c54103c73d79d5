// Package network ties discovery, the session server, the control session
// and the playback switch into the one object an application owns.
package network

import (
	"sync"

	"github.com/DrUlysses/Kristine-sub000/config"
	"github.com/DrUlysses/Kristine-sub000/core/discovery"
	"github.com/DrUlysses/Kristine-sub000/core/player"
	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/core/session"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
	"github.com/DrUlysses/Kristine-sub000/repository"
	"github.com/DrUlysses/Kristine-sub000/server"
)

// Options configures a Manager.
type Options struct {
	Discovery config.DiscoveryConfig
	Server    config.ServerConfig
	// Engine plays audio for the local coordinator. Engines that accept
	// callbacks are wired to it.
	Engine player.Engine
	// Catalog serves /songs and song searches. May be nil.
	Catalog repository.SongRepository
	// Targets overrides the beacon destinations.
	Targets []string
}

type eventSource interface {
	SetEvents(events player.EngineEvents)
}

// Manager owns every networked component of one instance.
type Manager struct {
	opts Options

	listener *discovery.Listener
	server   *server.SessionServer
	control  *session.ControlSession

	local  *player.Local
	remote *player.Remote
	player *player.Switch

	mu          sync.Mutex
	broadcaster *discovery.Broadcaster
}

// NewManager builds a stopped manager playing locally.
func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts}

	m.local = player.NewLocal(opts.Engine, player.LocalOptions{Catalog: opts.Catalog})
	if src, ok := opts.Engine.(eventSource); ok {
		src.SetEvents(m.local)
	}
	m.remote = player.NewRemote(m, opts.Catalog)
	m.player = player.NewSwitch(m.local, m.remote)

	m.listener = discovery.NewListener(discovery.NewRegistry(), discovery.ListenerOptions{
		Port:          opts.Discovery.Port,
		SweepInterval: opts.Discovery.SweepInterval,
		PeerTimeout:   opts.Discovery.PeerTimeout,
		MDNS:          opts.Discovery.MDNS,
	})
	m.server = server.New(server.Options{
		Port:       opts.Server.Port,
		Dispatcher: m.player,
		Songs:      opts.Catalog,
	})
	m.local.SetSink(m.server)
	m.control = session.NewControlSession()
	return m
}

// Player is the switch every playback intent goes through.
func (m *Manager) Player() *player.Switch { return m.player }

// Server exposes the session server.
func (m *Manager) Server() *server.SessionServer { return m.server }

// StartDiscovery listens for beacons and reports the live server set.
func (m *Manager) StartDiscovery(onServersDiscovered discovery.UpdateFunc) error {
	return m.listener.StartDiscovery(onServersDiscovered)
}

func (m *Manager) StopDiscovery() {
	m.listener.StopDiscovery()
}

// ConnectToCustomServer adds a manually entered server to the discovered set.
func (m *Manager) ConnectToCustomServer(address string, port int, onServersDiscovered discovery.UpdateFunc) {
	m.listener.ConnectToCustomServer(address, port, onServersDiscovered)
}

// DiscoveredServers returns the current address to port mapping.
func (m *Manager) DiscoveredServers() model.ServerSet {
	return m.listener.Registry().Snapshot()
}

// StartServer binds the session server, then advertises its port when the
// instance is discoverable. The beacon socket binds the same port number
// over UDP. A failing broadcaster leaves the server up.
func (m *Manager) StartServer() (int, []string, error) {
	port, addrs, err := m.server.Start()
	if err != nil {
		return 0, nil, err
	}
	if !m.opts.Server.Discoverable {
		return port, addrs, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broadcaster != nil {
		return port, addrs, nil
	}
	b := discovery.NewBroadcaster(discovery.BroadcasterOptions{
		AdvertisedPort: port,
		LocalPort:      port,
		DiscoveryPort:  m.opts.Discovery.Port,
		Interval:       m.opts.Discovery.BroadcastInterval,
		Targets:        m.opts.Targets,
		MDNS:           m.opts.Discovery.MDNS,
	})
	if _, err := b.Start(); err != nil {
		logger.Error("beacon broadcasting unavailable", logger.ErrorField(err))
		return port, addrs, nil
	}
	m.broadcaster = b
	return port, addrs, nil
}

// StopServer stops advertising, then closes every session.
func (m *Manager) StopServer() {
	m.mu.Lock()
	b := m.broadcaster
	m.broadcaster = nil
	m.mu.Unlock()

	if b != nil {
		b.Stop()
	}
	m.server.Stop()
}

// ConnectToServer follows the server at address:port. While connected every
// intent goes to that server; losing the connection falls back to local
// playback.
func (m *Manager) ConnectToServer(address string, port int, onConnectionStateChange session.StateHandler) {
	m.control.Connect(address, port, m.remote.ApplyUpdate, func(connected bool) {
		if connected {
			m.player.SetNetworkPlayer()
		} else {
			m.player.SetLocalPlayer()
		}
		if onConnectionStateChange != nil {
			onConnectionStateChange(connected)
		}
	})
}

// Disconnect closes the control session.
func (m *Manager) Disconnect() {
	m.control.Disconnect()
}

// ConnectionState reports the control session state.
func (m *Manager) ConnectionState() session.State {
	return m.control.State()
}

// Send queues cmd for the connected server without waiting for it.
func (m *Manager) Send(cmd protocol.Command) error {
	return m.control.Send(cmd)
}

// SendPlaylistToServer sends the playlist with current's position so the
// server replaces its playlist and starts current in one step.
func (m *Manager) SendPlaylistToServer(tracks []model.Track, current model.Track) error {
	cmd, err := protocol.SetPlaylistFor(tracks, current)
	if err != nil {
		logger.Warn("playlist not sent", logger.ErrorField(err))
		return err
	}
	return m.Send(cmd)
}

// Close releases everything the manager started.
func (m *Manager) Close() {
	m.Disconnect()
	m.StopServer()
	m.StopDiscovery()
}
