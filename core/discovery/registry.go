package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/DrUlysses/Kristine-sub000/metrics"
	"github.com/DrUlysses/Kristine-sub000/model"
)

// Registry is the table of known peers keyed by address. The last beacon
// from an address wins.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]model.PeerRecord
}

// NewRegistry creates an empty peer table.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]model.PeerRecord)}
}

// Observe inserts or refreshes the record for address.
func (r *Registry) Observe(address string, port int, now time.Time) {
	r.mu.Lock()
	_, known := r.peers[address]
	r.peers[address] = model.PeerRecord{Address: address, Port: port, LastSeenAt: now}
	r.mu.Unlock()

	if !known {
		metrics.PeersKnown.Inc()
	}
}

// EvictStale removes every peer silent for longer than timeout and returns
// the removed addresses, sorted.
func (r *Registry) EvictStale(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	var removed []string
	for addr, rec := range r.peers {
		if now.Sub(rec.LastSeenAt) > timeout {
			delete(r.peers, addr)
			removed = append(removed, addr)
		}
	}
	r.mu.Unlock()

	sort.Strings(removed)
	metrics.PeersKnown.Sub(float64(len(removed)))
	metrics.PeersEvicted.Add(float64(len(removed)))
	return removed
}

// Snapshot copies the live address -> port mapping.
func (r *Registry) Snapshot() model.ServerSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(model.ServerSet, len(r.peers))
	for addr, rec := range r.peers {
		out[addr] = rec.Port
	}
	return out
}

// Records copies the full records, oldest sighting first.
func (r *Registry) Records() []model.PeerRecord {
	r.mu.RLock()
	out := make([]model.PeerRecord, 0, len(r.peers))
	for _, rec := range r.peers {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.Before(out[j].LastSeenAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Clear forgets every peer.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.peers)
	r.peers = make(map[string]model.PeerRecord)
	r.mu.Unlock()

	metrics.PeersKnown.Sub(float64(n))
}
