package store

import (
	"context"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

type pendingWrite struct {
	ctx   context.Context
	id    string
	patch widget.Patch
}

// AsyncWriter makes writes fire-and-forget: Write queues the patch and
// returns, and one goroutine applies queued patches in order. Failures go to
// the ErrorBus as WRITE_FAIL. Use it in front of a store whose writes block
// (SQLite) so the frame loop never waits on I/O.
type AsyncWriter struct {
	next     Writer
	reporter event.Reporter

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []pendingWrite
	busy    bool
	closed  bool
	done    chan struct{}
	dropped int
	limit   int
}

// NewAsyncWriter starts the writer goroutine. limit bounds the queue; when
// full the oldest queued write is dropped (0 means unbounded).
func NewAsyncWriter(next Writer, errs *event.ErrorBus, limit int) *AsyncWriter {
	a := &AsyncWriter{
		next:     next,
		reporter: event.NewReporter(errs, "store:async"),
		done:     make(chan struct{}),
		limit:    limit,
	}
	a.cond = sync.NewCond(&a.mu)
	go a.run()
	return a
}

// Write implements Writer. It never blocks and only fails after Close.
func (a *AsyncWriter) Write(ctx context.Context, id string, patch widget.Patch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.limit > 0 && len(a.queue) >= a.limit {
		dropped := a.queue[0]
		a.queue = a.queue[1:]
		a.dropped++
		a.reporter.Report(event.WarningSeverity, event.CodeWriteFail, "write queue full, oldest write dropped",
			"widget_id", dropped.id, "patch", dropped.patch.String())
	}
	a.queue = append(a.queue, pendingWrite{ctx: context.WithoutCancel(ctx), id: id, patch: patch.Clone()})
	a.cond.Broadcast()
	return nil
}

func (a *AsyncWriter) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.queue) == 0 && a.closed {
			a.mu.Unlock()
			return
		}
		w := a.queue[0]
		a.queue = a.queue[1:]
		a.busy = true
		a.mu.Unlock()

		if err := a.next.Write(w.ctx, w.id, w.patch); err != nil {
			a.reporter.Fail(event.CodeWriteFail, err, "widget_id", w.id, "patch", w.patch.String())
		}

		a.mu.Lock()
		a.busy = false
		a.cond.Broadcast()
		a.mu.Unlock()
	}
}

// Flush blocks until every write queued before the call has been applied.
func (a *AsyncWriter) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for (len(a.queue) > 0 || a.busy) && !a.finished() {
		a.cond.Wait()
	}
}

func (a *AsyncWriter) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Dropped returns how many queued writes were discarded on a full queue.
func (a *AsyncWriter) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close applies what is queued and stops the goroutine. Idempotent.
func (a *AsyncWriter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()
	<-a.done
	return nil
}
