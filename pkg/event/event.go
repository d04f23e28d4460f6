package event

import (
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
)

// Event is the envelope carried on the board's bus. Widget events set
// WidgetID so subscribers can filter on a single widget.
type Event struct {
	// ID is a unique identifier for this event instance
	ID string `json:"id"`

	// Type is a namespaced event type (e.g. "widget.written")
	Type string `json:"type"`

	// Source identifies the writer (a board origin or component name)
	Source string `json:"source"`

	// WidgetID is the widget the event is about, if any
	WidgetID string `json:"widget_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Data contains the serialized payload (use codec to marshal/unmarshal)
	Data []byte `json:"data,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// CausationID identifies the event that directly caused this event,
	// e.g. the timer completion behind an automation write.
	CausationID string `json:"causation_id,omitempty"`
}

// EventCodec defines how to serialize and deserialize event payloads.
type EventCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements EventCodec with go-json-experiment.
type JSONCodec struct{}

// Marshal converts a payload to JSON bytes.
func (c JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into a payload.
func (c JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewEvent creates a new event with a generated ID and current timestamp.
func NewEvent(eventType, source string, payload any, codec EventCodec) (*Event, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}, nil
}

// ForWidget sets the widget the event concerns.
func (e *Event) ForWidget(id string) *Event {
	e.WidgetID = id
	return e
}

// WithMetadata adds metadata key-value pairs to the event.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithCausationID links this event to its cause.
func (e *Event) WithCausationID(id string) *Event {
	e.CausationID = id
	return e
}

// DecodePayload deserializes the event data into the provided struct.
func (e *Event) DecodePayload(v any, codec EventCodec) error {
	if len(e.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(e.Data, v)
}
