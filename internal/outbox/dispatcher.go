// Package outbox delivers reward events to Kafka off the request path.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/hatchery/internal/domain"
)

const (
	maxBatch     = 32
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
	drainTimeout = 5 * time.Second
)

// ErrQueueFull is returned by Publish when the event was dropped.
var ErrQueueFull = errors.New("publish queue full")

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Dispatcher is a bounded queue drained by a fixed set of workers that write
// to a single Kafka topic. It implements domain.EventPublisher.
type Dispatcher struct {
	producer         messageWriter
	topic            string
	workers          int
	queue            chan domain.Event
	logger           *slog.Logger
	shutdownComplete chan struct{}
}

var _ domain.EventPublisher = (*Dispatcher)(nil)

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(producer messageWriter, topic string, queueSize, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		producer:         producer,
		topic:            topic,
		workers:          workers,
		queue:            make(chan domain.Event, queueSize),
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Publish enqueues the event without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(_ context.Context, event domain.Event) error {
	select {
	case d.queue <- event:
		queueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		droppedCounter.WithLabelValues(event.Type).Inc()
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, event.Type)
	}
}

// Start runs the workers until ctx is cancelled, then drains what is left in
// the queue. It blocks and should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.shutdownComplete)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		batch := d.collect(nil)
		if len(batch) == 0 {
			return
		}
		d.deliver(drainCtx, batch)
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, d.collect([]domain.Event{event}))
		}
	}
}

// collect appends whatever is immediately available, up to maxBatch.
func (d *Dispatcher) collect(batch []domain.Event) []domain.Event {
	for len(batch) < maxBatch {
		select {
		case event := <-d.queue:
			batch = append(batch, event)
		default:
			queueDepth.Set(float64(len(d.queue)))
			return batch
		}
	}
	queueDepth.Set(float64(len(d.queue)))
	return batch
}

func (d *Dispatcher) deliver(ctx context.Context, batch []domain.Event) {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	messages := make([]kafka.Message, 0, len(batch))
	for _, event := range batch {
		msg, err := encode(event)
		if err != nil {
			d.logger.Error("encode event", "event_type", event.Type, "key", event.Key, "error", err)
			failedCounter.WithLabelValues(event.Type).Inc()
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = d.producer.WriteMessages(ctx, d.topic, messages...); err == nil {
			for _, msg := range messages {
				deliveredCounter.WithLabelValues(eventType(msg)).Inc()
			}
			return
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}

	d.logger.Error("deliver events", "topic", d.topic, "count", len(messages), "error", err)
	for _, msg := range messages {
		failedCounter.WithLabelValues(eventType(msg)).Inc()
	}
}

func encode(event domain.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return kafka.Message{}, err
	}
	occurred := event.OccurredAt.UTC()
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return kafka.Message{
		Key:   []byte(event.Key),
		Value: payload,
		Time:  occurred,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
		},
	}, nil
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

// HeaderEventType names the Kafka header carrying the event type.
const HeaderEventType = "event_type"
