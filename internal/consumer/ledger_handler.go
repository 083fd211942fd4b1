package consumer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LedgerHandler appends consumed reward events to reward_event_log. Replayed
// offsets are ignored, so redelivery after a missed commit is harmless.
type LedgerHandler struct {
	db execer
}

// NewLedgerHandler constructs a handler backed by a pgx pool or connection.
func NewLedgerHandler(db execer) *LedgerHandler {
	return &LedgerHandler{db: db}
}

// Handle stores the event.
func (h *LedgerHandler) Handle(ctx context.Context, msg Message) error {
	received := msg.Timestamp
	if received.IsZero() {
		received = time.Now().UTC()
	}
	_, err := h.db.Exec(ctx,
		`INSERT INTO reward_event_log (topic, partition, "offset", event_type, event_key, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (topic, partition, "offset") DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.Key,
		[]byte(msg.Payload),
		received,
	)
	return err
}
