// Package metrics defines the Prometheus counters of the credentials service.
// All metrics are registered with the default registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credentials"

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AuthOperationsTotal counts auth core operations.
// Labels:
//   - operation: register, login, refresh, request_reset, complete_reset, change_password
//   - outcome: success, rejected (caller error), error (internal failure)
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_operations_total",
		Help:      "Total number of auth operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// TokensIssuedTotal counts signed bearer tokens.
// Label:
//   - type: access or refresh
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of bearer tokens issued, by token type.",
	},
	[]string{"type"},
)

// ResetNotificationsTotal counts reset link deliveries.
// Label:
//   - outcome: success or error
var ResetNotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reset_notifications_total",
		Help:      "Total number of password reset notifications, by delivery outcome.",
	},
	[]string{"outcome"},
)
