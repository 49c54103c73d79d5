package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/core/protocol"
	"github.com/DrUlysses/Kristine-sub000/core/session"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/metrics"
	"github.com/DrUlysses/Kristine-sub000/repository"

	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// Options configures a SessionServer.
type Options struct {
	// Port to listen on. 0 picks an ephemeral port.
	Port int
	// Dispatcher receives controller commands.
	Dispatcher session.Dispatcher
	// Songs backs GET /songs. nil serves an empty catalog.
	Songs repository.SongRepository
}

// SessionServer accepts controllers on /player and serves the small HTTP
// surface next to it. It is the update sink of the local coordinator.
type SessionServer struct {
	opts Options

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	hub      *session.Hub
	port     int
	done     chan struct{}
}

func New(opts Options) *SessionServer {
	return &SessionServer{opts: opts}
}

// Start binds the listener before returning so the port can be advertised,
// then serves in the background. Starting a running server returns its
// current port.
func (s *SessionServer) Start() (int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return s.port, LocalAddresses(), nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return 0, nil, fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}

	hub := session.NewHub(s.opts.Dispatcher)
	srv := &http.Server{
		Handler:     s.routes(hub),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	done := make(chan struct{})

	s.srv = srv
	s.listener = ln
	s.hub = hub
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.done = done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("session server stopped", logger.ErrorField(err))
		}
	}()

	addrs := LocalAddresses()
	logger.Info("session server started",
		logger.Int("port", s.port),
		logger.Strings("addresses", addrs))
	return s.port, addrs, nil
}

// Stop closes every session, stops accepting and forgets the history. Safe
// to call when stopped.
func (s *SessionServer) Stop() {
	s.mu.Lock()
	srv, hub, done := s.srv, s.hub, s.done
	s.srv, s.listener, s.hub, s.done = nil, nil, nil, nil
	s.port = 0
	s.mu.Unlock()

	if srv == nil {
		return
	}

	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("session server forced to shut down", logger.ErrorField(err))
		srv.Close()
	}
	<-done
	logger.Info("session server stopped")
}

// Running reports whether the server is accepting connections.
func (s *SessionServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Port is the bound port, 0 when stopped.
func (s *SessionServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Hub returns the session table of the running server, nil when stopped.
func (s *SessionServer) Hub() *session.Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

// SendPlayerUpdate fans upd out to every controller. Updates produced while
// the server is stopped are dropped.
func (s *SessionServer) SendPlayerUpdate(upd protocol.Update) {
	hub := s.Hub()
	if hub == nil {
		logger.Debug("update dropped, server not running", logger.String("type", string(upd.Type)))
		return
	}
	hub.SendPlayerUpdate(upd)
}

func (s *SessionServer) routes(hub *session.Hub) http.Handler {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc(session.PlayerPath, hub.ServeWS)
	router.HandleFunc("/songs", s.handleSongs).Methods(http.MethodGet)
	router.HandleFunc("/sessions", sessionsHandler(hub)).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	// Preflight for any path; the middleware answers it.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LocalAddresses lists the IPv4 addresses of the interfaces that are up,
// loopback excluded.
func LocalAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Warn("list interfaces failed", logger.ErrorField(err))
		return nil
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				out = append(out, ip4.String())
			}
		}
	}
	return out
}
