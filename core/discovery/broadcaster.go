package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/beacon"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/metrics"
)

// BroadcasterState tracks the beacon loop lifecycle.
type BroadcasterState int

const (
	Stopped BroadcasterState = iota
	Starting
	Broadcasting
)

func (s BroadcasterState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Broadcasting:
		return "broadcasting"
	default:
		return "stopped"
	}
}

// DefaultTargets is loopback plus the 192.168.0-10.255 broadcast sweep.
// Interface introspection for broadcast addresses is unreliable across
// platforms, so the common private range is enumerated instead.
func DefaultTargets() []string {
	targets := []string{"127.0.0.1"}
	for i := 0; i <= 10; i++ {
		targets = append(targets, fmt.Sprintf("192.168.%d.255", i))
	}
	return targets
}

// BroadcasterOptions tunes a Broadcaster. Zero values take the defaults.
type BroadcasterOptions struct {
	// AdvertisedPort is the control-channel port written into each beacon.
	AdvertisedPort int
	// LocalPort is the UDP port the beacon socket binds. 0 picks one; a
	// taken port falls back to an ephemeral one.
	LocalPort int
	// DiscoveryPort is the fixed destination port of every beacon.
	DiscoveryPort int
	Interval      time.Duration
	Targets       []string
	// MDNS additionally registers a zeroconf service for the same port.
	MDNS bool
}

// Broadcaster is the server-role half of discovery.
type Broadcaster struct {
	opts BroadcasterOptions

	mu     sync.Mutex
	state  BroadcasterState
	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
	mdns   interface{ Shutdown() }
}

// NewBroadcaster creates a stopped broadcaster.
func NewBroadcaster(opts BroadcasterOptions) *Broadcaster {
	if opts.DiscoveryPort == 0 {
		opts.DiscoveryPort = DefaultPort
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultBroadcastInterval
	}
	if len(opts.Targets) == 0 {
		opts.Targets = DefaultTargets()
	}
	return &Broadcaster{opts: opts}
}

func (b *Broadcaster) State() BroadcasterState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start binds the beacon endpoint, returns its port and then begins the
// beacon loop. Calling Start while broadcasting returns the bound port.
func (b *Broadcaster) Start() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Stopped {
		return b.conn.LocalAddr().(*net.UDPAddr).Port, nil
	}
	b.state = Starting

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: b.opts.LocalPort})
	if err != nil && b.opts.LocalPort != 0 {
		logger.Warn("beacon port taken, using an ephemeral one",
			logger.Int("port", b.opts.LocalPort),
			logger.ErrorField(err))
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{})
	}
	if err != nil {
		b.state = Stopped
		return 0, fmt.Errorf("bind beacon endpoint: %w", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	b.conn = conn
	b.cancel = cancel
	b.done = make(chan struct{})

	if b.opts.MDNS {
		srv, err := registerMDNS(b.opts.AdvertisedPort)
		if err != nil {
			logger.Warn("mdns registration failed", logger.ErrorField(err))
		} else {
			b.mdns = srv
		}
	}

	go b.loop(ctx, conn, b.done)
	b.state = Broadcasting

	logger.Info("beacon broadcasting started",
		logger.Int("localPort", port),
		logger.Int("advertisedPort", b.opts.AdvertisedPort),
		logger.Duration("interval", b.opts.Interval))
	return port, nil
}

// Stop cancels the loop and releases the endpoint. No-op when stopped.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.state == Stopped {
		b.mu.Unlock()
		return
	}
	cancel, conn, done, mdns := b.cancel, b.conn, b.done, b.mdns
	b.cancel, b.conn, b.done, b.mdns = nil, nil, nil, nil
	b.state = Stopped
	b.mu.Unlock()

	cancel()
	<-done
	if err := conn.Close(); err != nil {
		logger.Debug("beacon socket close", logger.ErrorField(err))
	}
	if mdns != nil {
		mdns.Shutdown()
	}
	logger.Info("beacon broadcasting stopped")
}

func (b *Broadcaster) loop(ctx context.Context, conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	payload := beacon.Encode(b.opts.AdvertisedPort)
	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		b.sendAll(conn, payload)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) sendAll(conn *net.UDPConn, payload []byte) {
	for _, target := range b.opts.Targets {
		addr := &net.UDPAddr{IP: net.ParseIP(target), Port: b.opts.DiscoveryPort}
		if addr.IP == nil {
			logger.Warn("skipping invalid beacon target", logger.String("target", target))
			continue
		}
		if _, err := conn.WriteToUDP(payload, addr); err != nil {
			metrics.BeaconSendErrors.Inc()
			logger.Debug("beacon send failed",
				logger.String("target", addr.String()),
				logger.ErrorField(err))
			continue
		}
		metrics.BeaconsSent.Inc()
	}
}
