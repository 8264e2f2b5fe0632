package metrics

import (
	"time"

	"github.com/agentfleet/agentfleet/internal/observability"
)

// Resilience and inter-agent metrics
const (
	RateLimitRejectionsTotal = "ratelimit_rejections_total"

	BreakerTransitionsTotal = "circuit_breaker_transitions_total"
	BreakerRejectionsTotal  = "circuit_breaker_rejections_total"

	RetryAttemptsTotal = "retry_attempts_total"

	AgentSendsTotal   = "agent_sends_total"
	AgentSendDuration = "agent_send_duration_ms"
	TasksTotal        = "tasks_total"
	ServerStartTime   = "app_server_start_time_seconds"
	AgentsRegistered  = "agents_registered"
)

// RecordRateLimitRejection records an inbound request denied by the token bucket.
// keyKind is the kind of key the bucket was selected by ("ip" or "api_key").
func RecordRateLimitRejection(keyKind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitRejectionsTotal,
			1,
			map[string]string{"key": keyKind},
		)
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(agent, from, to string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerTransitionsTotal,
			1,
			map[string]string{
				"agent": agent,
				"from":  from,
				"to":    to,
			},
		)
	}
}

// RecordBreakerRejection records a send rejected by an open breaker.
func RecordBreakerRejection(agent string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerRejectionsTotal,
			1,
			map[string]string{"agent": agent},
		)
	}
}

// RecordRetryAttempt records a retry scheduled after a failed attempt.
func RecordRetryAttempt(agent string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetryAttemptsTotal,
			1,
			map[string]string{"agent": agent},
		)
	}
}

// RecordSend records the outcome and latency of one outbound send.
func RecordSend(agent, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AgentSendsTotal,
			1,
			map[string]string{
				"agent":   agent,
				"outcome": outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			AgentSendDuration,
			duration,
			map[string]string{"agent": agent},
		)
	}
}

// RecordTask records a task reaching a terminal state.
func RecordTask(agent, state string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			TasksTotal,
			1,
			map[string]string{
				"agent": agent,
				"state": state,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetAgentsRegistered records how many agents the registry resolves.
func SetAgentsRegistered(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(AgentsRegistered, float64(count), nil)
	}
}
