// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook metrics
var (
	// WebhookRequestsTotal tracks inbound EventSub webhook requests by result
	// (verified, rejected, challenge, duplicate).
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound EventSub webhook requests by result",
		},
		[]string{"result"},
	)
)

// Notification metrics
var (
	// NotificationsSentTotal tracks per-recipient notification outcomes.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Per-recipient live notification deliveries by status (sent, skipped, failed)",
		},
		[]string{"status"},
	)
)

// EventSub metrics
var (
	// EventSubRegistrationsTotal tracks upstream subscription registrations by
	// result (created, exists, error).
	EventSubRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_registrations_total",
			Help: "Upstream EventSub registration attempts by result",
		},
		[]string{"result"},
	)

	// EventSubDeregistrationsTotal tracks upstream subscription removals.
	EventSubDeregistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_deregistrations_total",
			Help: "Upstream EventSub deregistration attempts by result",
		},
		[]string{"result"},
	)
)

// Token metrics
var (
	// TokenRefreshesTotal tracks app access token acquisitions by status.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Twitch app access token refreshes by status (success, failure)",
		},
		[]string{"status"},
	)
)

// Command metrics
var (
	// CommandThrottledTotal counts command invocations rejected by the
	// per-guild sliding window throttle.
	CommandThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "command_throttled_total",
			Help: "Command invocations rejected by the per-guild throttle",
		},
	)

	// CommandsTotal tracks handled slash commands by name and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Handled slash commands by name and outcome",
		},
		[]string{"command", "outcome"},
	)
)
