package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/event"
)

// slogLevel maps an ErrorBus severity onto a log level.
func slogLevel(s event.ErrorSeverity) slog.Level {
	switch s {
	case event.DebugSeverity:
		return slog.LevelDebug
	case event.InfoSeverity:
		return slog.LevelInfo
	case event.WarningSeverity:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// logErrors renders every diagnostic published on errs through logger.
// Context keys are logged in sorted order.
func logErrors(ctx context.Context, errs *event.ErrorBus, logger *slog.Logger) (*event.ErrorSubscription, error) {
	return errs.SubscribeWithHandler(ctx, func(e event.ErrorEvent) {
		attrs := make([]any, 0, 4+2*len(e.Context))
		attrs = append(attrs, "code", e.Code, "component", e.Component)
		for _, k := range slices.Sorted(maps.Keys(e.Context)) {
			attrs = append(attrs, k, e.Context[k])
		}
		logger.Log(context.Background(), slogLevel(e.Severity), e.Message, attrs...)
	})
}

// bell plays alerts as a terminal bell followed by the sound's name.
type bell struct {
	mu sync.Mutex
	w  io.Writer
}

func (b *bell) Unlock() error { return nil }

func (b *bell) Play(sound string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.w, "\a🔔 %s\n", sound)
	return err
}
