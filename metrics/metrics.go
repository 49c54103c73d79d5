// Package metrics holds the Prometheus instruments shared by discovery and
// the session layer. They live on a private registry served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry carries every kristine metric plus Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	BeaconsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kristine_discovery_beacons_sent_total",
		Help: "Discovery datagrams successfully sent.",
	})
	BeaconSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kristine_discovery_beacon_send_errors_total",
		Help: "Discovery datagrams that failed to send.",
	})
	BeaconsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kristine_discovery_beacons_received_total",
		Help: "Discovery datagrams received, by outcome (accepted, malformed, spoofed).",
	}, []string{"outcome"})
	PeersKnown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kristine_discovery_peers",
		Help: "Peers currently known, summed over every registry in the process.",
	})
	PeersEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kristine_discovery_peers_evicted_total",
		Help: "Peers dropped after the liveness timeout.",
	})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kristine_sessions_active",
		Help: "Controllers connected, summed over every session hub in the process.",
	})
	CommandsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kristine_commands_received_total",
		Help: "Control commands received by the session server, by type.",
	}, []string{"type"})
	UpdatesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kristine_updates_published_total",
		Help: "Player updates fanned out by the session server, by type.",
	}, []string{"type"})
	FrameErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kristine_frame_errors_total",
		Help: "Frames dropped because they could not be decoded, by side (server, client).",
	}, []string{"side"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		BeaconsSent,
		BeaconSendErrors,
		BeaconsReceived,
		PeersKnown,
		PeersEvicted,
		SessionsActive,
		CommandsReceived,
		UpdatesPublished,
		FrameErrors,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
