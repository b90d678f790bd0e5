package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters for session lifecycle and message flows.
type BridgeMetrics struct {
	closeTotal    *prometheus.CounterVec
	reconnects    prometheus.Counter
	inboundTotal  *prometheus.CounterVec
	aiReplyTotal  *prometheus.CounterVec
	adminCalls    *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		closeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "session",
			Name:      "close_total",
			Help:      "Connection close events by classification",
		}, []string{"class"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "session",
			Name:      "reconnect_total",
			Help:      "Scheduled reconnect attempts",
		}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "bridge",
			Name:      "inbound_total",
			Help:      "Inbound messages by outcome",
		}, []string{"outcome"}),
		aiReplyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "bridge",
			Name:      "ai_reply_total",
			Help:      "AI reply attempts by status",
		}, []string{"status"}),
		adminCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "admin",
			Name:      "call_total",
			Help:      "Calls to the admin system by endpoint and status",
		}, []string{"endpoint", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wabridge",
			Subsystem: "bridge",
			Name:      "outbound_total",
			Help:      "Outbound sends by origin",
		}, []string{"origin"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.closeTotal, m.reconnects, m.inboundTotal, m.aiReplyTotal, m.adminCalls, m.outboundTotal)
	return m
}

func (m *BridgeMetrics) ObserveClose(class string) {
	if m == nil {
		return
	}
	m.closeTotal.WithLabelValues(class).Inc()
}

func (m *BridgeMetrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *BridgeMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) ObserveAIReply(status string) {
	if m == nil {
		return
	}
	m.aiReplyTotal.WithLabelValues(status).Inc()
}

func (m *BridgeMetrics) ObserveAdminCall(endpoint, status string) {
	if m == nil {
		return
	}
	m.adminCalls.WithLabelValues(endpoint, status).Inc()
}

func (m *BridgeMetrics) ObserveOutbound(origin string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(origin).Inc()
}
