package syncer

import (
	"alcyxob/fitness-sync/internal/domain"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	passesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "engine",
		Name:      "passes_total",
		Help:      "Sync passes by family and outcome (completed, skipped, error).",
	}, []string{"family", "outcome"})

	kicksCoalesced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "engine",
		Name:      "kicks_coalesced_total",
		Help:      "Kicks folded into the single pending slot while a pass was running.",
	}, []string{"family"})

	uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "upload",
		Name:      "requests_total",
		Help:      "Create and patch requests by family, operation and result.",
	}, []string{"family", "op", "result"})

	assetTransfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "upload",
		Name:      "asset_transfers_total",
		Help:      "Dependent asset uploads and downloads by family, direction and result.",
	}, []string{"family", "direction", "result"})

	pullsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "pull",
		Name:      "requests_total",
		Help:      "Pulls by family and result.",
	}, []string{"family", "result"})

	mergedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_sync",
		Subsystem: "pull",
		Name:      "records_total",
		Help:      "Pulled records by family and outcome (updated, inserted, skipped).",
	}, []string{"family", "outcome"})

	passDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitness_sync",
		Subsystem: "engine",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of completed sync passes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"family"})

	lastPullGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitness_sync",
		Subsystem: "pull",
		Name:      "last_success_timestamp_seconds",
		Help:      "Checkpoint time of the most recent successful pull.",
	}, []string{"family"})
)

func init() {
	prometheus.MustRegister(passesTotal, kicksCoalesced, uploadsTotal, assetTransfers,
		pullsTotal, mergedRecords, passDuration, lastPullGauge)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func recordPass(res Result) {
	family := string(res.Family)
	switch {
	case res.Skipped:
		passesTotal.WithLabelValues(family, "skipped").Inc()
		return
	case res.Reason != "":
		passesTotal.WithLabelValues(family, "error").Inc()
	default:
		passesTotal.WithLabelValues(family, "completed").Inc()
	}
	passDuration.WithLabelValues(family).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
}

func recordMerge(family domain.Family, res MergeResult) {
	f := string(family)
	mergedRecords.WithLabelValues(f, "updated").Add(float64(res.Updated))
	mergedRecords.WithLabelValues(f, "inserted").Add(float64(res.Inserted))
	mergedRecords.WithLabelValues(f, "skipped").Add(float64(res.Skipped))
}

func recordPullSuccess(family domain.Family, at time.Time) {
	pullsTotal.WithLabelValues(string(family), "ok").Inc()
	if !at.IsZero() {
		lastPullGauge.WithLabelValues(string(family)).Set(float64(at.Unix()))
	}
}
