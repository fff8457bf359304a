package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsIngestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Number of provider events by terminal outcome.",
	}, []string{"aspect", "outcome"})

	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "commitcollect",
		Subsystem: "ingest",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout projection persisted.",
	})

	awardsMintedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "milestone",
		Name:      "awards_minted_total",
		Help:      "Number of milestone awards minted by the progress engine.",
	})

	recomputeConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "commitcollect",
		Subsystem: "milestone",
		Name:      "recompute_conflicts_total",
		Help:      "Number of recompute commits lost to a version conflict.",
	})

	accountDeleteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "commitcollect",
		Subsystem: "account",
		Name:      "last_deletion_items",
		Help:      "Item count removed by the most recent account deletion.",
	})
)

func init() {
	prometheus.MustRegister(
		eventsIngestedCounter,
		workoutPersistGauge,
		awardsMintedCounter,
		recomputeConflictCounter,
		accountDeleteGauge,
	)
}

// Ingest outcomes recorded per event.
const (
	OutcomePersisted = "persisted"
	OutcomeDeleted   = "deleted"
	OutcomeDuplicate = "duplicate"
	OutcomeOrphaned  = "orphaned"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// RecordEvent counts a provider event's terminal outcome.
func RecordEvent(aspect, outcome string) {
	eventsIngestedCounter.WithLabelValues(aspect, outcome).Inc()
}

// RecordWorkoutPersisted updates the persistence watermark gauge.
func RecordWorkoutPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordAwardsMinted counts newly minted awards.
func RecordAwardsMinted(n int) {
	if n > 0 {
		awardsMintedCounter.Add(float64(n))
	}
}

// RecordRecomputeConflict counts a lost optimistic-concurrency race.
func RecordRecomputeConflict() {
	recomputeConflictCounter.Inc()
}

// RecordAccountDeletion records the size of a completed cascading delete.
func RecordAccountDeletion(items int) {
	accountDeleteGauge.Set(float64(items))
}
