// Package audit defines the structured event trail the lifecycle engine
// emits after every successful mutating operation. Delivery and storage of
// events is the caller's concern.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Action identifies the operation an event records.
type Action string

const (
	ActionFormCreated         Action = "form_created"
	ActionSchemaUpdated       Action = "schema_updated"
	ActionResponseSubmitted   Action = "response_submitted"
	ActionFormSoftDeleted     Action = "form_soft_deleted"
	ActionResponseSoftDeleted Action = "response_soft_deleted"
)

// Event is one audit record.
type Event struct {
	Action    Action    `json:"action"`
	EntityID  string    `json:"entityId"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives audit events. Implementations must not block the calling
// operation longer than necessary and must not fail it.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, event Event)

// Record delegates to the underlying function.
func (fn SinkFunc) Record(ctx context.Context, event Event) { fn(ctx, event) }

// NopSink discards every event.
func NopSink() Sink {
	return SinkFunc(func(context.Context, Event) {})
}

type zerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink writes each event as a structured log line.
func NewZerologSink(logger zerolog.Logger) Sink {
	return &zerologSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *zerologSink) Record(ctx context.Context, event Event) {
	s.logger.Info().
		Str("action", string(event.Action)).
		Str("entity_id", event.EntityID).
		Str("actor", event.Actor).
		Time("timestamp", event.Timestamp).
		Msg("audit event")
}
