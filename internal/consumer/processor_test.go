package consumer

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/hatchery/internal/events"
)

func rewardMessage(eventType string, offset int64, value string) kafka.Message {
	return kafka.Message{
		Topic:     "hatchery.rewards.v1",
		Partition: 0,
		Offset:    offset,
		Time:      time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
		Key:       []byte("c-1"),
		Value:     []byte(value),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"instance_id":"c-1","from_species_id":1,"to_species_id":2,"evolved_at":"2024-04-02T09:00:00Z"}`
	reader := &stubReader{messages: []kafka.Message{rewardMessage(events.TypeCreatureEvolved, 10, payload)}}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeCreatureEvolved, handler.last.EventType)
	require.Equal(t, "c-1", handler.last.Key)
	require.Equal(t, int64(10), handler.last.Offset)
	require.JSONEq(t, payload, string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		rewardMessage(events.TypeCurrencyRefunded, 20, `{"operation":"acquire","eggs":1,"rare_candies":1}`),
	}}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsPoisonPills(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		rewardMessage("creature.renamed", 1, `{}`),
		rewardMessage(events.TypeWorkoutFinished, 2, `not json`),
		{Topic: "hatchery.rewards.v1", Offset: 3, Value: []byte(`{}`)},
	}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("hatchery.rewards.v1"))

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.Equal(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("hatchery.rewards.v1")))
}

func TestLedgerHandlerInsertsIdempotently(t *testing.T) {
	db := &stubExecer{}
	handler := NewLedgerHandler(db)

	msg := Message{Topic: "t", Partition: 1, Offset: 7, EventType: events.TypeWorkoutFinished, Key: "w-1", Payload: []byte(`{}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Contains(t, db.sql, "ON CONFLICT")
	require.Equal(t, "t", db.args[0])
	require.Equal(t, int64(7), db.args[2])
	require.Equal(t, "w-1", db.args[4])
	received, ok := db.args[6].(time.Time)
	require.True(t, ok)
	require.False(t, received.IsZero())
}

type stubExecer struct {
	sql  string
	args []any
}

func (s *stubExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = sql
	s.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
