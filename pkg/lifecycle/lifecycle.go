// Package lifecycle defines the events the core emits when schema or record
// state changes. Delivery is fire-and-forget: publishers never block the
// emitting operation and the operation's outcome never depends on delivery.
package lifecycle

import "time"

type Kind string

const (
	RecordCreated Kind = "record.created"
	RecordUpdated Kind = "record.updated"
	RecordDeleted Kind = "record.deleted"
	SchemaChanged Kind = "schema.changed"
)

type Event struct {
	Kind          Kind           `json:"kind"`
	TenantID      string         `json:"tenant_id"`
	SubModuleCode string         `json:"sub_module_code"`
	RecordID      string         `json:"record_id,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(evt Event)
}

// NopPublisher discards events. Used by tests and by the dbtool, which has
// no subscribers.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
