package event

import (
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// Widget event types published on the board bus.
const (
	EventTypeWidgetWritten  = "widget.written"
	EventTypeWidgetAdded    = "widget.added"
	EventTypeWidgetRemoved  = "widget.removed"
	EventTypeTimerCompleted = "timer.completed"
	EventTypeLevelChanged   = "sound.level"
)

// WidgetWritten reports a merged write to a widget's persisted config.
//
// Patch values lose their Go types once encoded: numbers come back as
// float64. Consumers that need typed values re-read the widget.
type WidgetWritten struct {
	WidgetID  string       `json:"widget_id"`
	Kind      widget.Kind  `json:"kind"`
	Patch     widget.Patch `json:"patch"`
	Origin    string       `json:"origin"`
	Seq       uint64       `json:"seq"`
	WrittenAt int64        `json:"written_at"` // Unix nanoseconds
}

// WidgetLifecycle reports a widget being added to or removed from the board.
type WidgetLifecycle struct {
	WidgetID string      `json:"widget_id"`
	Kind     widget.Kind `json:"kind"`
}

// TimerCompleted reports a timer reaching zero.
type TimerCompleted struct {
	WidgetID string `json:"widget_id"`
	At       int64  `json:"at"`
	Sound    string `json:"sound,omitempty"`
}

// LevelChanged reports a sound meter moving to a new band.
type LevelChanged struct {
	WidgetID string  `json:"widget_id"`
	Level    int     `json:"level"`
	Volume   float64 `json:"volume"`
}

// NewWidgetEvent wraps a payload for widgetID.
//
// Example:
//
//	evt, err := NewWidgetEvent(EventTypeWidgetWritten, "board-a", "traffic-1", WidgetWritten{...})
//	bus.Publish(ctx, *evt)
func NewWidgetEvent(eventType, source, widgetID string, payload any) (*Event, error) {
	evt, err := NewEvent(eventType, source, payload, JSONCodec{})
	if err != nil {
		return nil, err
	}
	return evt.ForWidget(widgetID).WithMetadata("kind", kindOf(payload)), nil
}

func kindOf(payload any) string {
	switch p := payload.(type) {
	case WidgetWritten:
		return string(p.Kind)
	case WidgetLifecycle:
		return string(p.Kind)
	case TimerCompleted:
		return string(widget.KindTimeTool)
	case LevelChanged:
		return string(widget.KindSound)
	}
	return ""
}
