// Package metrics exposes Prometheus counters and a gauge for DKG sessions,
// signing sessions, and vault operations, grounded on the teacher's
// metrics/metrics.go (package-level prometheus.Registry + CounterVec/Gauge
// pattern).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry collects every custody-engine metric. Callers register it with
// an http handler (via promhttp) if they want to expose it; the core never
// does so itself.
var Registry = prometheus.NewRegistry()

var (
	// DKGSessionsStarted counts DKG sessions started; it carries no labels
	// (outcomes are counted by DKGSessionsFinalized).
	DKGSessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_dkg_sessions_started_total",
		Help: "Number of DKG sessions started by this node.",
	})
	// DKGSessionsFinalized counts DKG sessions that reached a terminal state, by state.
	DKGSessionsFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_dkg_sessions_finalized_total",
		Help: "Number of DKG sessions that reached a terminal state.",
	}, []string{"state"})
	// SigningSessionsStarted counts signing sessions started.
	SigningSessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_signing_sessions_started_total",
		Help: "Number of signing sessions started by this coordinator.",
	})
	// SigningSessionsResolved counts signing sessions by terminal outcome.
	SigningSessionsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_signing_sessions_resolved_total",
		Help: "Number of signing sessions resolved, by outcome.",
	}, []string{"outcome"})
	// VaultOperations counts vault operations by name and outcome.
	VaultOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_vault_operations_total",
		Help: "Number of vault operations performed, by operation and outcome.",
	}, []string{"operation", "outcome"})
	// AuditEventsEmitted counts audit events emitted, by kind.
	AuditEventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_audit_events_total",
		Help: "Number of audit events recorded, by kind.",
	}, []string{"kind"})
	// ActiveGroupMembers tracks the member count of the most recently finalized group.
	ActiveGroupMembers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "custody_active_group_members",
		Help: "Member count of the most recently finalized group descriptor.",
	})
)

//nolint:gochecknoinits // mirrors the teacher's package-level registry wiring
func init() {
	Registry.MustRegister(
		DKGSessionsStarted,
		DKGSessionsFinalized,
		SigningSessionsStarted,
		SigningSessionsResolved,
		VaultOperations,
		AuditEventsEmitted,
		ActiveGroupMembers,
	)
}
