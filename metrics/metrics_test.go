package metrics

import "testing"

// TestCollectorsAcceptLabels exercises every collector's label set once,
// catching a label-cardinality mismatch (the most common promauto wiring
// mistake) at test time instead of at first use in production.
func TestCollectorsAcceptLabels(t *testing.T) {
	DialDuration.WithLabelValues("tcp").Observe(0.01)
	LoginDuration.WithLabelValues("success").Observe(0.05)
	ConnectionsActive.Inc()
	ConnectionsActive.Dec()
	ConnectionAttemptsTotal.WithLabelValues("success").Inc()
	RetriesTotal.WithLabelValues("succeeded").Inc()
	CommandsInFlight.Inc()
	CommandsInFlight.Dec()
	CommandDuration.WithLabelValues("batch").Observe(0.1)
	AttentionsTotal.WithLabelValues("command timeout").Inc()
	TokensTotal.WithLabelValues("DONE").Inc()
	CekCacheTotal.WithLabelValues("hit").Inc()
	CekProviderFailuresTotal.WithLabelValues("AZURE_KEY_VAULT").Inc()
	EnclaveAttestationsTotal.WithLabelValues("succeeded").Inc()
}
