package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	funnelTurns       *prometheus.CounterVec
	funnelTransitions *prometheus.CounterVec
	llmAttempts       *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
	sweepLeads        *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	broadcastSends    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		funnelTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "funnel",
			Name:      "turns_total",
			Help:      "Inbound funnel turns by outcome",
		}, []string{"stage", "outcome"}),
		funnelTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "funnel",
			Name:      "transitions_total",
			Help:      "Funnel stage transitions",
		}, []string{"from", "to"}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Response generation attempts by provider and outcome",
		}, []string{"provider", "model", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hub",
			Subsystem: "llm",
			Name:      "attempt_seconds",
			Help:      "Latency of a single generation attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		sweepLeads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "entitlement",
			Name:      "sweep_leads_total",
			Help:      "Leads processed by the expiry sweep",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "access",
			Name:      "redemptions_total",
			Help:      "Access link redemptions",
		}, []string{"outcome"}),
		broadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "broadcast",
			Name:      "sends_total",
			Help:      "Broadcast deliveries",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.funnelTurns,
		m.funnelTransitions,
		m.llmAttempts,
		m.llmLatency,
		m.sweepLeads,
		m.webhookEvents,
		m.redemptions,
		m.broadcastSends,
	)
	return m
}

func (m *Metrics) ObserveTurn(stage, outcome string) {
	if m == nil {
		return
	}
	m.funnelTurns.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.funnelTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveLLMAttempt(provider, model, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(provider, model, outcome).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) ObserveSweep(deactivated, failed int) {
	if m == nil {
		return
	}
	m.sweepLeads.WithLabelValues("deactivated").Add(float64(deactivated))
	m.sweepLeads.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveRedemption(valid bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if valid {
		outcome = "redeemed"
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBroadcast(outcome string) {
	if m == nil {
		return
	}
	m.broadcastSends.WithLabelValues(outcome).Inc()
}
