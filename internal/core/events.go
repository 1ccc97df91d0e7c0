package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event describes one entity write for the audit collaborator. Before/After
// hold field snapshots; Before is nil on create, After is nil on delete.
type Event struct {
	Model    string         `json:"model"`
	RecordID uuid.UUID      `json:"record_id"`
	Action   Action         `json:"action"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	ActorID  uuid.UUID      `json:"actor_id"`
	TenantID uuid.UUID      `json:"tenant_id"`
	At       time.Time      `json:"at"`
}

// Recorder receives domain events. The core never persists audit rows itself;
// an audit collaborator supplies an implementation at service construction.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// eventBuffer collects events during a transaction. Events are delivered only
// after the transaction commits, so the audit collaborator never sees writes
// that were rolled back.
type eventBuffer struct {
	actor  Actor
	events []Event
}

func newEventBuffer(actor Actor) *eventBuffer {
	return &eventBuffer{actor: actor}
}

func (b *eventBuffer) add(model string, id uuid.UUID, action Action, before, after map[string]any) {
	b.events = append(b.events, Event{
		Model:    model,
		RecordID: id,
		Action:   action,
		Before:   before,
		After:    after,
		ActorID:  b.actor.UserID,
		TenantID: b.actor.TenantID,
		At:       time.Now().UTC(),
	})
}

func (b *eventBuffer) flush(ctx context.Context, rec Recorder) {
	if rec == nil {
		return
	}
	for _, ev := range b.events {
		rec.Record(ctx, ev)
	}
	b.events = nil
}
