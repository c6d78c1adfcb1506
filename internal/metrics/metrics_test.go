package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("IDLE", "ok")
	m.ObserveTransition("IDLE", "QUALIFICATION")
	m.ObserveLLMAttempt("bedrock", "model", "ok", 0.1)
	m.ObserveSweep(1, 0)
	m.ObserveWebhook("checkout.session.completed", "ok")
	m.ObserveRedemption(true)
	m.ObserveBroadcast("sent")
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition("QUALIFICATION", "PROBLEM_AMPLIFICATION")
	m.ObserveTransition("CLOSING", "CLOSING")
	m.ObserveSweep(2, 1)
	m.ObserveRedemption(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.funnelTransitions.WithLabelValues("QUALIFICATION", "PROBLEM_AMPLIFICATION")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.funnelTransitions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepLeads.WithLabelValues("deactivated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepLeads.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redemptions.WithLabelValues("rejected")))
}
