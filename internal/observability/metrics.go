// Package observability holds the process-wide Prometheus collectors for the
// reward core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the coordinator counters.
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient"
	OutcomeNoEligible   = "no_eligible"
	OutcomeCannotEvolve = "cannot_evolve"
	OutcomeNotFound     = "not_found"
	OutcomeIntegrity    = "data_integrity"
	OutcomeStoreError   = "store_error"
	OutcomeInconsistent = "inconsistent"
	OutcomeRefunded     = "refunded"
	OutcomeRefundFailed = "refund_failed"
)

var (
	workoutsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "workouts",
		Name:      "finished_total",
		Help:      "Workouts persisted, labeled by source.",
	}, []string{"source"})

	lastWorkoutGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hatchery",
		Subsystem: "workouts",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout persisted.",
	})

	currencyCredited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "inventory",
		Name:      "credited_total",
		Help:      "Currency units credited, labeled by currency.",
	}, []string{"currency"})

	currencyConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "inventory",
		Name:      "consumed_total",
		Help:      "Currency units consumed, labeled by currency.",
	}, []string{"currency"})

	inventoryBalance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hatchery",
		Subsystem: "inventory",
		Name:      "balance",
		Help:      "Last observed currency balance, labeled by currency.",
	}, []string{"currency"})

	acquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "coordinator",
		Name:      "acquisitions_total",
		Help:      "Acquisition attempts, labeled by outcome.",
	}, []string{"outcome"})

	evolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "coordinator",
		Name:      "evolutions_total",
		Help:      "Evolution attempts, labeled by outcome.",
	}, []string{"outcome"})

	refunds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "coordinator",
		Name:      "compensating_refunds_total",
		Help:      "Compensating refunds after a failed grant, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})

	reconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "coordinator",
		Name:      "reconciled_unlocks_total",
		Help:      "Collection entries unlocked by reconciliation runs.",
	})
)

func init() {
	prometheus.MustRegister(
		workoutsFinished,
		lastWorkoutGauge,
		currencyCredited,
		currencyConsumed,
		inventoryBalance,
		acquisitions,
		evolutions,
		refunds,
		reconciled,
	)
}

// RecordWorkoutFinished counts a persisted workout and moves the watermark gauge.
func RecordWorkoutFinished(source string, ts time.Time) {
	workoutsFinished.WithLabelValues(source).Inc()
	if ts.IsZero() {
		return
	}
	lastWorkoutGauge.Set(float64(ts.Unix()))
}

// RecordCredited counts currency added to the inventory.
func RecordCredited(eggs, candies int) {
	if eggs > 0 {
		currencyCredited.WithLabelValues("eggs").Add(float64(eggs))
	}
	if candies > 0 {
		currencyCredited.WithLabelValues("rare_candies").Add(float64(candies))
	}
}

// RecordConsumed counts currency spent from the inventory.
func RecordConsumed(eggs, candies int) {
	if eggs > 0 {
		currencyConsumed.WithLabelValues("eggs").Add(float64(eggs))
	}
	if candies > 0 {
		currencyConsumed.WithLabelValues("rare_candies").Add(float64(candies))
	}
}

// RecordBalance updates the inventory gauges.
func RecordBalance(eggs, candies int) {
	inventoryBalance.WithLabelValues("eggs").Set(float64(eggs))
	inventoryBalance.WithLabelValues("rare_candies").Set(float64(candies))
}

// RecordAcquisition counts an acquisition attempt.
func RecordAcquisition(outcome string) {
	acquisitions.WithLabelValues(outcome).Inc()
}

// RecordEvolution counts an evolution attempt.
func RecordEvolution(outcome string) {
	evolutions.WithLabelValues(outcome).Inc()
}

// RecordRefund counts a compensating refund.
func RecordRefund(operation, outcome string) {
	refunds.WithLabelValues(operation, outcome).Inc()
}

// RecordReconciled counts collection entries repaired by reconciliation.
func RecordReconciled(n int) {
	if n <= 0 {
		return
	}
	reconciled.Add(float64(n))
}
