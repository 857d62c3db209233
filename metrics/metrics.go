// Package metrics defines the Prometheus collectors this driver exposes:
// dial/login latency, in-flight commands, connection retries, and Always
// Encrypted CEK cache behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DialDuration tracks time spent establishing a TCP/TLS connection,
	// from Connect() entry to channel open, before PRELOGIN begins.
	DialDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tds_dial_duration_seconds",
		Help:    "Time spent dialing and opening the transport channel",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"network"})

	// LoginDuration tracks time spent in PRELOGIN+TLS negotiation+LOGIN7,
	// from channel open to login outcome.
	LoginDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tds_login_duration_seconds",
		Help:    "Time spent negotiating PRELOGIN, TLS, and LOGIN7",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	// ConnectionsActive tracks the number of live connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tds_connections_active",
		Help: "Number of currently open connections",
	})

	// ConnectionAttemptsTotal counts connection attempts by final outcome.
	ConnectionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_connection_attempts_total",
		Help: "Total connection attempts",
	}, []string{"status"})

	// RetriesTotal counts connection-resiliency retry attempts.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_reconnect_retries_total",
		Help: "Total reconnect retry attempts under the resiliency policy",
	}, []string{"outcome"})

	// CommandsInFlight tracks commands currently awaiting a server
	// response (batch or RPC, between request send and final DONE).
	CommandsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tds_commands_in_flight",
		Help: "Number of commands awaiting a server response",
	})

	// CommandDuration tracks end-to-end command execution time.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tds_command_duration_seconds",
		Help:    "Command execution duration from request send to final DONE",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"kind"})

	// AttentionsTotal counts ATTENTION packets sent, by reason.
	AttentionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_attentions_total",
		Help: "Total ATTENTION packets sent to interrupt a command",
	}, []string{"reason"})

	// TokensTotal counts TDS response tokens processed by type.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_tokens_total",
		Help: "Total TDS response tokens processed",
	}, []string{"token_type"})

	// CekCacheTotal counts CEK table resolution outcomes.
	CekCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_cek_cache_total",
		Help: "Total CEK table resolutions by cache outcome",
	}, []string{"outcome"})

	// CekProviderFailuresTotal counts per-blob key-store provider
	// failures encountered during CEK resolution failover.
	CekProviderFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_cek_provider_failures_total",
		Help: "Total key-store provider failures during CEK decryption failover",
	}, []string{"provider"})

	// EnclaveAttestationsTotal counts enclave attestation handshakes by
	// outcome.
	EnclaveAttestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tds_enclave_attestations_total",
		Help: "Total enclave attestation handshakes",
	}, []string{"status"})
)
