package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veloskill_sync_runs_total",
		Help: "Sync runs by mode and outcome",
	}, []string{"mode", "outcome"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veloskill_sync_duration_seconds",
		Help:    "Wall time of one user sync",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"mode"})

	activitiesImportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veloskill_activities_imported_total",
		Help: "Activities inserted by sync",
	})

	rateLimitAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veloskill_rate_limit_aborts_total",
		Help: "Sync runs stopped by the feed rate limit",
	})

	globalXPAwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veloskill_global_xp_awarded_total",
		Help: "Global XP awarded by source",
	}, []string{"source"})

	challengesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veloskill_challenges_completed_total",
		Help: "Challenge attempts that reached reussi",
	})

	badgesGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veloskill_badges_granted_total",
		Help: "Badges granted",
	})

	masteryUnlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veloskill_mastery_unlocks_total",
		Help: "Mastery level increases",
	})
)
