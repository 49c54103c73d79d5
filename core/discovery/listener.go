// Package discovery finds peers on the local network. Servers broadcast a
// small beacon every few seconds; clients listen for beacons, keep a table
// of live peers and drop peers that go quiet.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/beacon"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/metrics"
	"github.com/DrUlysses/Kristine-sub000/model"
)

const (
	DefaultPort              = 45678
	DefaultBroadcastInterval = 5 * time.Second
	DefaultSweepInterval     = 5 * time.Second
	DefaultPeerTimeout       = 15 * time.Second

	maxDatagram = 512
)

// UpdateFunc receives a fresh copy of the discovered servers.
type UpdateFunc func(servers model.ServerSet)

// ListenerOptions tunes a Listener. Zero values take the defaults.
type ListenerOptions struct {
	Port          int
	SweepInterval time.Duration
	PeerTimeout   time.Duration
	MDNS          bool
	Now           func() time.Time
}

func (o *ListenerOptions) setDefaults() {
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.PeerTimeout <= 0 {
		o.PeerTimeout = DefaultPeerTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Listener is the client-role half of discovery.
type Listener struct {
	opts     ListenerOptions
	registry *Registry

	mu       sync.Mutex
	conn     net.PacketConn
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	onUpdate UpdateFunc
}

// NewListener creates a stopped listener feeding registry.
func NewListener(registry *Registry, opts ListenerOptions) *Listener {
	opts.setDefaults()
	if registry == nil {
		registry = NewRegistry()
	}
	return &Listener{opts: opts, registry: registry}
}

// Registry exposes the peer table the listener feeds.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// Running reports whether the loops are active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// StartDiscovery binds the discovery port and starts the receive and sweep
// loops. Calling it while running does nothing.
func (l *Listener) StartDiscovery(onUpdate UpdateFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", l.opts.Port))
	if err != nil {
		return fmt.Errorf("bind discovery port %d: %w", l.opts.Port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	l.conn = conn
	l.cancel = cancel
	l.wg = wg
	l.onUpdate = onUpdate

	wg.Add(2)
	go l.receiveLoop(ctx, wg, conn)
	go l.sweepLoop(ctx, wg)

	if l.opts.MDNS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			browseMDNS(ctx, func(address string, port int) {
				l.registry.Observe(address, port, l.opts.Now())
				l.publish()
			})
		}()
	}

	logger.Info("discovery started", logger.Int("port", l.opts.Port))
	return nil
}

// StopDiscovery cancels both loops, closes the endpoint and clears the
// registry. Safe to call when stopped.
func (l *Listener) StopDiscovery() {
	l.mu.Lock()
	cancel, conn, wg := l.cancel, l.conn, l.wg
	l.cancel, l.conn, l.wg, l.onUpdate = nil, nil, nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := conn.Close(); err != nil {
		logger.Debug("discovery socket close", logger.ErrorField(err))
	}
	wg.Wait()
	l.registry.Clear()
	logger.Info("discovery stopped")
}

// ConnectToCustomServer records a manually entered peer and reports the
// new snapshot to onUpdate.
func (l *Listener) ConnectToCustomServer(address string, port int, onUpdate UpdateFunc) {
	l.registry.Observe(address, port, l.opts.Now())
	logger.Info("custom server added",
		logger.String("address", address),
		logger.Int("port", port))
	if onUpdate != nil {
		onUpdate(l.registry.Snapshot())
	}
}

func (l *Listener) receiveLoop(ctx context.Context, wg *sync.WaitGroup, conn net.PacketConn) {
	defer wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("discovery receive failed", logger.ErrorField(err))
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok || beacon.Rejected(udpAddr.IP) {
			metrics.BeaconsReceived.WithLabelValues("spoofed").Inc()
			continue
		}
		port, ok := beacon.Decode(buf[:n])
		if !ok {
			metrics.BeaconsReceived.WithLabelValues("malformed").Inc()
			logger.Debug("ignoring malformed beacon", logger.String("from", udpAddr.String()))
			continue
		}
		metrics.BeaconsReceived.WithLabelValues("accepted").Inc()

		l.registry.Observe(udpAddr.IP.String(), port, l.opts.Now())
		l.publish()
	}
}

func (l *Listener) sweepLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.registry.EvictStale(l.opts.Now(), l.opts.PeerTimeout)
			if len(removed) > 0 {
				logger.Info("peers expired", logger.Strings("addresses", removed))
			}
			// Published even without changes so observers can refresh liveness.
			l.publish()
		}
	}
}

func (l *Listener) publish() {
	l.mu.Lock()
	fn := l.onUpdate
	l.mu.Unlock()

	if fn != nil {
		fn(l.registry.Snapshot())
	}
}
