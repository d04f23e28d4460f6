package event

import (
	"context"
	"testing"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

type testPayload struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("test.event", "test-source", testPayload{Message: "hello", Count: 42}, JSONCodec{})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	if evt.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if evt.Type != "test.event" {
		t.Errorf("Expected type 'test.event', got '%s'", evt.Type)
	}
	if evt.Source != "test-source" {
		t.Errorf("Expected source 'test-source', got '%s'", evt.Source)
	}
	if time.Since(evt.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
	if evt.Metadata == nil {
		t.Error("Metadata should be initialized")
	}
}

func TestEvent_DecodePayload(t *testing.T) {
	codec := JSONCodec{}
	evt, err := NewEvent("test.event", "src", testPayload{Message: "test message", Count: 123}, codec)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	var decoded testPayload
	if err := evt.DecodePayload(&decoded, codec); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if decoded.Message != "test message" || decoded.Count != 123 {
		t.Errorf("Unexpected payload %+v", decoded)
	}

	empty := &Event{}
	if err := empty.DecodePayload(&decoded, codec); err != nil {
		t.Errorf("Empty data should decode to nothing, got %v", err)
	}
}

func TestEvent_Builders(t *testing.T) {
	evt, _ := NewEvent("test.event", "src", testPayload{}, JSONCodec{})
	evt.ForWidget("timer-1").WithMetadata("kind", "time-tool").WithCausationID("cause")

	if evt.WidgetID != "timer-1" {
		t.Errorf("Expected widget timer-1, got %s", evt.WidgetID)
	}
	if evt.Metadata["kind"] != "time-tool" {
		t.Errorf("Expected kind metadata, got %v", evt.Metadata)
	}
	if evt.CausationID != "cause" {
		t.Errorf("Expected causation id, got %s", evt.CausationID)
	}

	bare := &Event{}
	bare.WithMetadata("a", "b")
	if bare.Metadata["a"] != "b" {
		t.Error("WithMetadata should initialize a nil map")
	}
}

func TestNewWidgetEvent(t *testing.T) {
	evt, err := NewWidgetEvent(EventTypeWidgetWritten, "board-a", "traffic-1", WidgetWritten{
		WidgetID: "traffic-1",
		Kind:     widget.KindTraffic,
		Patch:    widget.TrafficActive(widget.TrafficRed),
		Origin:   "board-a",
		Seq:      7,
	})
	if err != nil {
		t.Fatalf("NewWidgetEvent failed: %v", err)
	}
	if evt.WidgetID != "traffic-1" || evt.Metadata["kind"] != "traffic" {
		t.Errorf("Unexpected envelope %+v", evt)
	}

	var back WidgetWritten
	if err := evt.DecodePayload(&back, JSONCodec{}); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if back.Seq != 7 || back.Patch["active"] != "red" {
		t.Errorf("Unexpected payload %+v", back)
	}
}

func TestNewWidgetEvent_KindFromPayload(t *testing.T) {
	tests := []struct {
		payload any
		want    string
	}{
		{TimerCompleted{WidgetID: "t"}, "time-tool"},
		{LevelChanged{WidgetID: "s", Level: 3}, "sound"},
		{WidgetLifecycle{WidgetID: "e", Kind: widget.KindExpectations}, "expectations"},
		{testPayload{}, ""},
	}
	for _, tt := range tests {
		evt, err := NewWidgetEvent("x", "src", "w", tt.payload)
		if err != nil {
			t.Fatalf("NewWidgetEvent failed: %v", err)
		}
		if evt.Metadata["kind"] != tt.want {
			t.Errorf("%T: expected kind %q, got %q", tt.payload, tt.want, evt.Metadata["kind"])
		}
	}
}

func TestNewEvent_MarshalError(t *testing.T) {
	if _, err := NewEvent("x", "y", make(chan int), JSONCodec{}); err == nil {
		t.Error("Expected an error marshaling a channel")
	}
}

func TestErrorBus_PublishSubscribe(t *testing.T) {
	bus := NewErrorBus(2)
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		bus.Publish(NewErrorEvent(Error, CodeWriteFail, "store", "boom"))
	}
	if bus.DroppedCount() != 1 {
		t.Errorf("Expected 1 drop, got %d", bus.DroppedCount())
	}
	if got := <-sub.Events(); got.Code != CodeWriteFail {
		t.Errorf("Expected WRITE_FAIL, got %s", got.Code)
	}

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected no subscribers, got %d", bus.SubscriberCount())
	}
	if n := bus.Publish(NewErrorEvent(InfoSeverity, CodeTimerComplete, "timer", "done")); n != 0 {
		t.Errorf("Expected no deliveries, got %d", n)
	}
}

func TestErrorBus_Closed(t *testing.T) {
	bus := NewErrorBus(0)
	sub, _ := bus.Subscribe(context.Background())
	bus.Close()
	bus.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Subscription should be closed")
	}
	if _, err := bus.Subscribe(context.Background()); err != ErrBusClosed {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}

func TestErrorBus_SubscribeWithHandler(t *testing.T) {
	bus := NewErrorBus(8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ErrorEvent, 1)
	if _, err := bus.SubscribeWithHandler(ctx, func(evt ErrorEvent) { got <- evt }); err != nil {
		t.Fatalf("SubscribeWithHandler failed: %v", err)
	}

	bus.Publish(NewErrorEvent(WarningSeverity, CodeAmbiguousTarget, "link:t1", "two traffic lights"))
	select {
	case evt := <-got:
		if evt.Code != CodeAmbiguousTarget {
			t.Errorf("Unexpected code %s", evt.Code)
		}
	case <-time.After(time.Second):
		t.Fatal("Handler never ran")
	}
}

func TestReporter(t *testing.T) {
	bus := NewErrorBus(4)
	defer bus.Close()
	sub, _ := bus.Subscribe(context.Background())

	r := NewReporter(bus, "timer:t1")
	r.Report(InfoSeverity, CodeTimerComplete, "timer reached zero", "sound", "Gong", "dangling")

	evt := <-sub.Events()
	if evt.Component != "timer:t1" || evt.Severity != InfoSeverity {
		t.Errorf("Unexpected event %s", evt)
	}
	if evt.Context["sound"] != "Gong" {
		t.Errorf("Expected sound context, got %v", evt.Context)
	}
	if _, ok := evt.Context["dangling"]; ok {
		t.Error("Trailing key without value should be dropped")
	}

	var zero Reporter
	zero.Report(Error, CodeWriteFail, "nobody listens")
	NewReporter(nil, "x").Fail(CodeWriteFail, context.Canceled)
}

func TestErrorSeverity_String(t *testing.T) {
	if Error.String() != "ERROR" || DebugSeverity.String() != "DEBUG" {
		t.Error("Unexpected severity names")
	}
	if ErrorSeverity(42).String() != "UNKNOWN(42)" {
		t.Errorf("Unexpected unknown severity %s", ErrorSeverity(42))
	}
}
