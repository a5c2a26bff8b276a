package pulse

import (
	"time"
)

// EventType identifies the kind of analytics event.
type EventType string

// Event types accepted by the ingestion API.
const (
	EventTypeTrack    EventType = "track"
	EventTypeIdentify EventType = "identify"
	EventTypeGroup    EventType = "group"
	EventTypeScreen   EventType = "screen"
	EventTypePage     EventType = "page"
	EventTypeAlias    EventType = "alias"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeTrack, EventTypeIdentify, EventTypeGroup,
		EventTypeScreen, EventTypePage, EventTypeAlias:
		return true
	}
	return false
}

// Properties is an alias for map[string]any, holding arbitrary JSON-compatible
// event properties. Values may be strings, numbers, booleans, nil, arrays, or
// nested objects.
type Properties = map[string]any

// Traits is an alias for map[string]any, holding identity or group traits.
type Traits = map[string]any

// BaseEvent is the producer-side input to the pipeline. It carries only what
// the caller supplied; identity, context, and metadata are attached by the
// enricher.
type BaseEvent struct {
	// Type is the event kind. Required.
	Type EventType

	// Event is the event name. Required for track events, optional for
	// screen and page events (where it names the screen/page).
	Event string

	// Properties holds arbitrary event properties.
	Properties Properties

	// Traits holds identity or group traits for identify/group events.
	Traits Traits

	// Timestamp is an optional client-supplied event time. When zero, the
	// enricher assigns the wall-clock time at enrichment.
	Timestamp time.Time
}

// EnrichedEvent is the unit of queueing and transmission. Once enqueued its
// fields are immutable except SentAt, which the dispatcher assigns per
// transmission attempt.
type EnrichedEvent struct {
	Type       EventType  `json:"type"`
	Event      string     `json:"event,omitempty"`
	Properties Properties `json:"properties,omitempty"`
	Traits     Traits     `json:"traits,omitempty"`

	// AnonymousID is always present; the identity store guarantees a
	// non-empty value.
	AnonymousID string `json:"anonymousId"`
	UserID      string `json:"userId,omitempty"`
	GroupID     string `json:"groupId,omitempty"`

	// Timestamp is the event time in ISO-8601 UTC with millisecond
	// precision, assigned at enrichment when the producer supplied none.
	Timestamp string `json:"timestamp"`

	Context   *Context `json:"context,omitempty"`
	MessageID string   `json:"messageId"`
	WriteKey  string   `json:"writeKey"`

	// SentAt is empty until the dispatcher stamps the batch at send time.
	// A requeued event is restamped on its next attempt.
	SentAt string `json:"sentAt,omitempty"`
}

// batchPayload is the wire form of one ingestion request.
type batchPayload struct {
	Batch []*EnrichedEvent `json:"batch"`
}

// timestampLayout renders ISO-8601 UTC with millisecond precision. The
// trailing Z is a literal; callers must convert to UTC before formatting.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// formatTimestamp renders t for the wire.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
