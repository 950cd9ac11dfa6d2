// Package metrics holds the prometheus collectors of the blitz service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blitz_sessions_created_total",
			Help: "Total number of blitz sessions created",
		},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_session_transitions_total",
			Help: "Session status transitions by target status and reason",
		},
		[]string{"status", "reason"},
	)

	PlayersJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blitz_players_joined_total",
			Help: "New player memberships (re-joins are not counted)",
		},
	)

	PlayersKicked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blitz_players_kicked_total",
			Help: "Players removed by a host",
		},
	)

	AnswersRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blitz_answers_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"outcome"},
	)

	RefreshBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blitz_refresh_broadcasts_total",
			Help: "Refresh signals fanned out to local subscribers",
		},
	)

	RefreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blitz_refresh_coalesced_total",
			Help: "Refresh signals skipped because the subscriber already had one pending",
		},
	)

	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blitz_realtime_connections",
			Help: "Currently open realtime connections",
		},
	)
)
