// Package metrics exposes Prometheus instrumentation for the output
// scheduler, message hub, and input receivers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed output scheduler ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmxx_scheduler_ticks_total",
		Help: "Total number of output scheduler ticks completed.",
	})

	// TickOverruns counts ticks whose processing exceeded their budget.
	TickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmxx_scheduler_tick_overruns_total",
		Help: "Total number of output scheduler ticks that overran their time budget.",
	})

	// FramesSent counts output frames sent per universe.
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmxx_frames_sent_total",
		Help: "Total number of output frames sent, by universe.",
	}, []string{"universe"})

	// SendErrors counts output transmission failures.
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmxx_send_errors_total",
		Help: "Total number of output transmission errors.",
	})

	// ReceiverPacketsTotal counts inbound packets accepted per protocol.
	ReceiverPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmxx_receiver_packets_total",
		Help: "Total number of inbound packets accepted, by protocol.",
	}, []string{"protocol"})

	// ReceiverErrorsTotal counts inbound parse/read errors per protocol.
	ReceiverErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmxx_receiver_errors_total",
		Help: "Total number of inbound receive/parse errors, by protocol.",
	}, []string{"protocol"})

	// HubClientsConnected is the current number of connected hub clients.
	HubClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dmxx_hub_clients_connected",
		Help: "Current number of connected message hub clients.",
	})

	// HubClientDisconnects counts clients disconnected for overflowing their
	// outbound queue.
	HubClientDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmxx_hub_client_overflow_disconnects_total",
		Help: "Total number of hub clients disconnected for an overflowing outbound queue.",
	})

	// AuthDenials counts permission check failures.
	AuthDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmxx_auth_denials_total",
		Help: "Total number of permission denials, by action.",
	}, []string{"action"})
)
