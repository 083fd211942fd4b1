package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "publisher",
		Name:      "events_delivered_total",
		Help:      "Number of reward events successfully published to Kafka.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "publisher",
		Name:      "events_failed_total",
		Help:      "Number of reward events that could not be encoded or written after retries.",
	}, []string{"event_type"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hatchery",
		Subsystem: "publisher",
		Name:      "events_dropped_total",
		Help:      "Number of reward events dropped because the publish queue was full.",
	}, []string{"event_type"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hatchery",
		Subsystem: "publisher",
		Name:      "queue_depth",
		Help:      "Events waiting in the publish queue.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hatchery",
		Subsystem: "publisher",
		Name:      "batch_duration_seconds",
		Help:      "Time spent encoding and writing a batch of events, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, droppedCounter, queueDepth, batchDuration)
}
