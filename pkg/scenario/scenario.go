// Package scenario runs scripted classroom sessions against real boards on
// a synthetic clock and checks what ends up in the store.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/board"
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// Scenario is one scripted session.
type Scenario interface {
	// Name returns the scenario name (e.g., "countdown-traffic")
	Name() string

	// Category groups related scenarios in reports
	Category() string

	// Description says what the scenario demonstrates
	Description() string

	// Setup builds boards and seeds widgets
	Setup(ctx context.Context) error

	// Run drives the boards through the script
	Run(ctx context.Context) error

	// Teardown shuts every board down
	Teardown() error

	// Validate checks the outcome and returns the result
	Validate() *Result
}

// Result is the outcome of one scenario.
type Result struct {
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Passed     bool           `json:"passed"`
	Duration   time.Duration  `json:"duration,format:nano"`
	Simulated  time.Duration  `json:"simulated,format:nano"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	Assertions []*Assertion   `json:"assertions"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Assertion is a single pass/fail check.
type Assertion struct {
	Name     string `json:"name"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// NewResult creates a result that passes until something fails.
func NewResult(name, category string) *Result {
	return &Result{
		Name:       name,
		Category:   category,
		Passed:     true,
		Assertions: make([]*Assertion, 0),
		Metrics:    make(map[string]any),
		StartTime:  time.Now(),
	}
}

// AddAssertion records a check.
func (r *Result) AddAssertion(a *Assertion) {
	r.Assertions = append(r.Assertions, a)
	if !a.Passed {
		r.Passed = false
	}
}

// AddError records an error. Any error fails the scenario.
func (r *Result) AddError(err error) {
	r.Errors = append(r.Errors, err.Error())
	r.Passed = false
}

// AddWarning records a note that does not fail the scenario.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Finish stamps the end time.
func (r *Result) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// FailedAssertions returns the number of failed checks.
func (r *Result) FailedAssertions() int {
	n := 0
	for _, a := range r.Assertions {
		if !a.Passed {
			n++
		}
	}
	return n
}

func (r *Result) String() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("[%s] %s (%s simulated)", status, r.Name, r.Simulated)
}

// epoch is where every scenario clock starts. Offsets model viewers whose
// clocks disagree.
var epoch = clock.FromDuration(1000 * time.Hour)

// Base carries the boards, clocks and result of a scenario. Embed it.
type Base struct {
	name        string
	category    string
	description string

	cfg    board.Config
	clocks []*clock.DeltaClock
	boards []*board.Board
	errs   *event.ErrorBus
	watch  *event.ErrorSubscription
	codes  map[string]int
	closer []func() error

	simulated time.Duration
	result    *Result
}

// NewBase creates a base with the default board config.
func NewBase(name, category, description string) *Base {
	return &Base{
		name:        name,
		category:    category,
		description: description,
		cfg:         board.DefaultConfig(),
		codes:       make(map[string]int),
		result:      NewResult(name, category),
	}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Category() string    { return b.category }
func (b *Base) Description() string { return b.description }

// Config is the board config used by later NewBoard calls.
func (b *Base) Config() *board.Config { return &b.cfg }

// Result returns the result being built.
func (b *Base) Result() *Result { return b.result }

// Boards returns every board in creation order.
func (b *Base) Boards() []*board.Board { return b.boards }

// NewBoard creates a board named origin whose clock runs offset ahead of
// the scenario epoch. Every board reports to one shared ErrorBus.
func (b *Base) NewBoard(ctx context.Context, origin string, offset time.Duration, opts ...board.Option) (*board.Board, error) {
	if b.errs == nil {
		b.errs = event.NewErrorBus(4096)
		sub, err := b.errs.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		b.watch = sub
	}

	cfg := b.cfg
	cfg.Origin = origin
	// Replay applies writes within the frame that issued them.
	cfg.Store.WriteQueue = 0
	clk := clock.NewDeltaClock(epoch.Add(offset + b.simulated))
	opts = append([]board.Option{board.WithClock(clk), board.WithErrorBus(b.errs)}, opts...)
	bd, err := board.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", origin, err)
	}
	b.clocks = append(b.clocks, clk)
	b.boards = append(b.boards, bd)
	return bd, nil
}

// OnTeardown registers fn to run after every board has shut down.
func (b *Base) OnTeardown(fn func() error) {
	b.closer = append(b.closer, fn)
}

// Seed adds widgets through the first board's store.
func (b *Base) Seed(ctx context.Context, widgets ...widget.Widget) error {
	if len(b.boards) == 0 {
		return errors.New("seed: no board")
	}
	for _, w := range widgets {
		if err := b.boards[0].Store().Add(ctx, w); err != nil {
			return fmt.Errorf("seed %s: %w", w.ID, err)
		}
	}
	return nil
}

// MountAll mounts every board.
func (b *Base) MountAll(ctx context.Context) error {
	for _, bd := range b.boards {
		if err := bd.Mount(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step advances every clock frame by frame until d has passed, running a
// frame on each board in creation order.
func (b *Base) Step(ctx context.Context, d time.Duration) error {
	period := b.cfg.FrameInterval
	for elapsed := time.Duration(0); elapsed < d; elapsed += period {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, c := range b.clocks {
			c.Step(period)
		}
		for _, bd := range b.boards {
			bd.Loop().Frame()
		}
		b.simulated += period
	}
	b.collect()
	return nil
}

// Simulated returns how much scenario time has passed.
func (b *Base) Simulated() time.Duration { return b.simulated }

// collect tallies every error event reported so far.
func (b *Base) collect() {
	if b.watch == nil {
		return
	}
	for {
		select {
		case evt, ok := <-b.watch.Events():
			if !ok {
				return
			}
			b.codes[evt.Code]++
		default:
			return
		}
	}
}

// Reported returns how many events with code the boards have reported.
func (b *Base) Reported(code string) int {
	b.collect()
	return b.codes[code]
}

// Teardown shuts down every board, then runs the OnTeardown hooks.
func (b *Base) Teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, bd := range b.boards {
		if err := bd.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range b.closer {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.errs != nil {
		b.errs.Close()
	}
	return errors.Join(errs...)
}

// Assert records a check.
func (b *Base) Assert(name string, expected, actual any, passed bool, message string) {
	b.result.AddAssertion(&Assertion{
		Name:     name,
		Expected: expected,
		Actual:   actual,
		Passed:   passed,
		Message:  message,
	})
}

// Metric records a value shown in detailed reports.
func (b *Base) Metric(name string, value any) {
	b.result.Metrics[name] = value
}

func (b *Base) Warning(msg string) {
	b.result.AddWarning(msg)
}

// Finish completes the result.
func (b *Base) Finish() *Result {
	b.result.Simulated = b.simulated
	b.result.Finish()
	return b.result
}
