// Package metrics defines and registers all custom Prometheus metrics for the
// zaphost gateway. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default registry on package init via
// promauto; the /metrics endpoint exposes them alongside the HTTP metrics
// collected by echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zaphost"

// ── Credential metrics ───────────────────────────────────────────────────────

// CredentialValidationsTotal counts credential validation attempts.
// Labels:
//   - scheme: "api_key", "project" or "identity_token"
//   - result: "ok", "invalid", "trial_expired", "inactive" or "error"
var CredentialValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_validations_total",
		Help:      "Total number of credential validations, by scheme and result.",
	},
	[]string{"scheme", "result"},
)

// CredentialsIssuedTotal counts newly issued credentials.
// Label:
//   - kind: "api_key" or "project"
var CredentialsIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credentials_issued_total",
		Help:      "Total number of credentials issued, by kind.",
	},
	[]string{"kind"},
)

// ── Session metrics ──────────────────────────────────────────────────────────

// SessionsActive tracks the number of registry entries holding a live connection.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Current number of live WhatsApp connections held by the registry.",
	},
)

// SessionTransitionsTotal counts state machine transitions.
// Label:
//   - to: the status entered
var SessionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of session status transitions, by target status.",
	},
	[]string{"to"},
)

// SessionCreateDuration measures how long a connect request waits for its outcome.
// Label:
//   - result: "challenge", "connected", "timeout", "auth_failure" or "error"
var SessionCreateDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_create_duration_seconds",
		Help:      "Duration of createSession from call to settled outcome.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
	},
	[]string{"result"},
)

// MessagesSentTotal counts outbound messages.
// Label:
//   - result: "sent", "replayed", "not_connected" or "error"
var MessagesSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total number of outbound messages, by result.",
	},
	[]string{"result"},
)

// ── Audit queue metrics ──────────────────────────────────────────────────────

// AuditQueueDepth tracks the current number of records waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of usage records pending in each writer channel.",
	},
	[]string{"worker_id"},
)

// AuditDroppedTotal counts usage records dropped because a writer channel was full.
// Label:
//   - type: "message" or "api_call"
var AuditDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of usage records dropped on a full queue.",
	},
	[]string{"type"},
)

// AuditErrorsTotal counts usage records that failed to persist.
// Label:
//   - type: "message" or "api_call"
var AuditErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_errors_total",
		Help:      "Total number of usage records that failed to persist.",
	},
	[]string{"type"},
)
