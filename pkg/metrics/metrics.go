// Package metrics, sync engine'in Prometheus metriklerini tanımlar.
//
// Metrikler bir Registerer'a kaydedilir; production'da
// prometheus.DefaultRegisterer (bridge'in /metrics endpoint'i promhttp.Handler
// ile okur), testlerde prometheus.NewRegistry() kullanılır.
//
// Tüm method'lar nil receiver ile güvenlidir: metrik istemeyen bileşenler
// (ve testler) nil *Metrics geçebilir.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mqvi_sync"

// Metrics, sync engine metrik seti.
type Metrics struct {
	pushEvents      *prometheus.CounterVec
	droppedEvents   *prometheus.CounterVec
	rollbacks       *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	connectionState *prometheus.GaugeVec
	typingEntries   prometheus.Gauge
}

// New, metrikleri oluşturur ve reg'e kaydeder.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_applied_total",
			Help:      "Push events applied to the local stores, by event type.",
		}, []string{"type"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_dropped_total",
			Help:      "Push events dropped as stale or unknown, by event type.",
		}, []string{"type"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_rollbacks_total",
			Help:      "Optimistic mutations rolled back after a failed request, by action.",
		}, []string{"action"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations issued, by action and final status.",
		}, []string{"action", "status"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnects_total",
			Help:      "Successful push reconnects, by workspace.",
		}, []string{"workspace"}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_connection_state",
			Help:      "Current push connection state per workspace (0=disconnected,1=connecting,2=connected,3=reconnecting,4=closed).",
		}, []string{"workspace"}),
		typingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "typing_entries",
			Help:      "Typing entries currently held in the presence store.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.pushEvents,
			m.droppedEvents,
			m.rollbacks,
			m.mutations,
			m.reconnects,
			m.connectionState,
			m.typingEntries,
		)
	}
	return m
}

// EventApplied, uygulanan bir push event'ini sayar.
func (m *Metrics) EventApplied(eventType string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(eventType).Inc()
}

// EventDropped, düşürülen (stale / bilinmeyen) bir push event'ini sayar.
func (m *Metrics) EventDropped(eventType string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(eventType).Inc()
}

// Rollback, geri alınan bir optimistic mutation'ı sayar.
func (m *Metrics) Rollback(action string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(action).Inc()
}

// MutationFinished, sonuçlanan bir aksiyonu final status'u ile sayar.
func (m *Metrics) MutationFinished(action, status string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action, status).Inc()
}

// Reconnected, başarılı bir yeniden bağlanmayı sayar.
func (m *Metrics) Reconnected(workspaceID string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(workspaceID).Inc()
}

// SetConnectionState, workspace bağlantısının state'ini yazar.
func (m *Metrics) SetConnectionState(workspaceID string, state int) {
	if m == nil {
		return
	}
	m.connectionState.WithLabelValues(workspaceID).Set(float64(state))
}

// SetTypingEntries, presence store'daki typing entry sayısını yazar.
func (m *Metrics) SetTypingEntries(n int) {
	if m == nil {
		return
	}
	m.typingEntries.Set(float64(n))
}
