// Package board wires the clock engine and the automation links to a widget
// store. A Board is one viewer of a shared board: it mounts a controller for
// every widget it finds, writes under its own origin, and follows writes made
// by other viewers through the store's event bus.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BYTE-6D65/liveboard/pkg/automation"
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/registry"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/sensor"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/telemetry"
	"github.com/BYTE-6D65/liveboard/pkg/timer"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// timeTool is the controller pair mounted for a time tool widget.
type timeTool struct {
	timer *timer.Timer
	link  *automation.CompletionLink
}

// soundMeter is the controller set mounted for a sound widget.
type soundMeter struct {
	meter     *sensor.Meter
	threshold *automation.ThresholdLink
	peer      *automation.PeerSync
}

// Board is the composition root for one viewer.
//
// Controllers run on the board's Loop. Everything that touches them (Apply,
// Add, Remove, the accessors' return values) belongs on the loop goroutine:
// call it between frames, from a frame callback, or through Do.
type Board struct {
	cfg     Config
	origin  string
	clock   clock.Clock
	loop    *schedule.Loop
	store   store.Store
	writer  store.Writer
	async   *store.AsyncWriter
	ws      *store.Workspace
	bus     event.Bus
	errs    *event.ErrorBus
	journal *store.Journal
	metrics *telemetry.Metrics
	alert   timer.AlertPlayer
	report  event.Reporter
	ctx     context.Context

	ownStore bool
	ownBus   bool
	ownErrs  bool
	sources  map[string]sensor.Source

	kinds  *registry.Registry[widget.Kind]
	timers *registry.Registry[*timeTool]
	sounds *registry.Registry[*soundMeter]
	truers *registry.Registry[*clock.AffineTruer]

	mu      sync.Mutex
	sub     event.Subscription
	errSub  *event.ErrorSubscription
	pump    schedule.Handle
	drops   uint64 // bus drops already recovered from
	mounted bool
	closed  bool
}

// Option configures a Board.
type Option func(*Board)

// WithClock sets the clock (default SystemClock).
func WithClock(clk clock.Clock) Option {
	return func(b *Board) { b.clock = clk }
}

// WithStore shares s between boards instead of opening the configured
// store. s must publish to the board's bus (see WithBus). The board does not
// close it.
func WithStore(s store.Store) Option {
	return func(b *Board) { b.store = s }
}

// WithBus shares bus between boards. The board does not close it.
func WithBus(bus event.Bus) Option {
	return func(b *Board) { b.bus = bus }
}

// WithErrorBus reports diagnostics to errs. The board does not close it.
func WithErrorBus(errs *event.ErrorBus) Option {
	return func(b *Board) { b.errs = errs }
}

// WithAlertPlayer sets the host alert player for every time tool.
func WithAlertPlayer(p timer.AlertPlayer) Option {
	return func(b *Board) {
		if p != nil {
			b.alert = p
		}
	}
}

// WithMetrics records board metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithSoundSource sets what the sound widget id hears (default silence).
func WithSoundSource(id string, src sensor.Source) Option {
	return func(b *Board) { b.sources[id] = src }
}

// WithSoundSources sets several sound sources at once.
func WithSoundSources(sources map[string]sensor.Source) Option {
	return func(b *Board) {
		for id, src := range sources {
			b.sources[id] = src
		}
	}
}

// New creates an unmounted board.
// Defaults:
// - Clock: SystemClock
// - Bus: InMemoryBus sized by EventBusBuffer, dropping for slow subscribers
// - ErrorBus: sized by ErrorBusBuffer
// - Store: opened from cfg.Store, writing to the bus and an in-memory journal
// - Writer: queued in front of the store unless Store.WriteQueue is 0
func New(ctx context.Context, cfg Config, opts ...Option) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board config: %w", err)
	}

	b := &Board{
		cfg:     cfg,
		origin:  cfg.Origin,
		alert:   timer.SilentPlayer{},
		sources: make(map[string]sensor.Source),
		kinds:   registry.New[widget.Kind](),
		timers:  registry.New[*timeTool](),
		sounds:  registry.New[*soundMeter](),
		truers:  registry.New[*clock.AffineTruer](),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.clock == nil {
		b.clock = clock.NewSystemClock()
	}
	if b.errs == nil {
		b.errs = event.NewErrorBus(cfg.ErrorBusBuffer)
		b.ownErrs = true
	}
	if b.bus == nil {
		b.bus = event.NewInMemoryBus(
			event.WithBufferSize(cfg.EventBusBuffer),
			event.WithDropSlow(true),
			event.WithBusName("board:"+b.origin),
			event.WithDropReporter(b.errs),
		)
		b.ownBus = true
	}
	b.report = event.NewReporter(b.errs, "board:"+b.origin)

	if b.store == nil {
		b.journal = store.NewJournal(cfg.Store.JournalLimit)
		s, err := openStore(ctx, cfg.Store,
			store.WithBus(b.bus),
			store.WithJournal(b.journal),
			store.WithOrigin(b.origin),
			store.WithClock(b.clock),
		)
		if err != nil {
			if b.ownBus {
				b.bus.Close()
			}
			return nil, err
		}
		b.store = s
		b.ownStore = true
	}

	b.writer = b.meter(b.store)
	if cfg.Store.WriteQueue > 0 {
		b.async = store.NewAsyncWriter(b.writer, b.errs, cfg.Store.WriteQueue)
		b.writer = b.async
	}
	b.ws = store.NewWorkspace(b.store, cfg.Policy())
	b.ctx = store.AsWriter(context.Background(), b.origin, b.clock)
	b.loop = schedule.NewLoop(b.clock,
		schedule.WithFramePeriod(cfg.FrameInterval),
		schedule.WithFrameObserver(b.metrics.RecordFrame),
	)
	return b, nil
}

func openStore(ctx context.Context, cfg StoreConfig, opts ...store.Option) (store.Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		s, err := store.OpenSQLite(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(opts...), nil
	}
}

// meter wraps next with write metrics.
func (b *Board) meter(next store.Writer) store.Writer {
	return store.WriterFunc(func(ctx context.Context, id string, patch widget.Patch) error {
		start := time.Now()
		err := next.Write(ctx, id, patch)
		kind, _ := b.kinds.Get(id)
		b.metrics.RecordStoreWrite(string(kind), start, err)
		return err
	})
}

// Mount subscribes to widget events, mounts a controller for every widget in
// the store and starts the event pump. Mounting twice is a no-op.
func (b *Board) Mount(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return store.ErrClosed
	}
	if b.mounted {
		return nil
	}

	sub, err := b.bus.Subscribe(ctx, event.Filter{Types: []string{"widget.*"}})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if b.metrics != nil {
		b.errSub, err = b.errs.SubscribeWithHandler(ctx, func(e event.ErrorEvent) {
			b.metrics.RecordError(e.Component, e.Code)
		})
		if err != nil {
			sub.Close()
			return fmt.Errorf("subscribe errors: %w", err)
		}
	}

	widgets, err := b.store.Widgets(ctx)
	if err != nil {
		sub.Close()
		return fmt.Errorf("list widgets: %w", err)
	}
	for _, w := range widgets {
		b.mountWidget(w)
	}

	b.sub = sub
	b.drops = droppedOf(b.bus)
	b.mounted = true
	b.pump = b.loop.ScheduleFrame(b.drain)
	return nil
}

// Run drives the board's loop at the configured frame interval until ctx is
// cancelled.
func (b *Board) Run(ctx context.Context) error {
	return b.loop.Run(ctx)
}

// Do runs fn on the loop goroutine at the next frame.
func (b *Board) Do(fn func()) schedule.Handle {
	return b.loop.Post(fn)
}

func (b *Board) linkOptions() []automation.Option {
	return []automation.Option{
		automation.WithErrorBus(b.errs),
		automation.WithMetrics(b.metrics),
		automation.WithDelay(b.cfg.StabilizationDelay),
		automation.WithContext(b.ctx),
	}
}

func (b *Board) mountWidget(w widget.Widget) {
	if b.kinds.Has(w.ID) {
		return
	}
	b.kinds.Set(w.ID, w.Kind)

	switch cfg := w.Config.(type) {
	case widget.TimeToolConfig:
		b.mountTimeTool(w.ID, cfg)
	case widget.SoundConfig:
		b.mountSound(w.ID, cfg)
	}
}

func (b *Board) mountTimeTool(id string, cfg widget.TimeToolConfig) {
	t := timer.New(id, cfg, b.clock, b.loop, b.writer,
		timer.WithAlertPlayer(b.alert),
		timer.WithErrorBus(b.errs),
		timer.WithMetrics(b.metrics),
		timer.WithBus(b.bus),
		timer.WithContext(b.ctx),
	)
	link := automation.NewCompletionLink(id, automation.CompletionEffects(cfg), b.ws, b.writer, b.linkOptions()...)
	link.Attach(t)
	b.timers.Set(id, &timeTool{timer: t, link: link})
	t.Mount()
}

func (b *Board) mountSound(id string, cfg widget.SoundConfig) {
	src, ok := b.sources[id]
	if !ok {
		src = sensor.Constant(0)
	}
	m := sensor.NewMeter(id, src, b.loop, sensor.WithSensitivity(cfg.Sensitivity))
	threshold := automation.NewThresholdLink(id, automation.SoundTrafficThreshold(cfg), b.loop, b.ws, b.writer, b.linkOptions()...)
	peer := automation.NewPeerSync(id, cfg.SyncExpectations, b.ws, b.writer, b.linkOptions()...)

	m.OnLevel(func(level int, volume float64) {
		threshold.Observe(level)
		b.metrics.RecordSound(id, level, volume)
		b.publish(event.EventTypeLevelChanged, id, event.LevelChanged{WidgetID: id, Level: level, Volume: volume})
	})
	b.sounds.Set(id, &soundMeter{meter: m, threshold: threshold, peer: peer})
	m.Mount()
	peer.Refresh()
}

func (b *Board) unmountWidget(id string) {
	b.kinds.Delete(id)
	if tt, ok := b.timers.Delete(id); ok {
		tt.timer.Unmount()
		tt.link.Close()
	}
	if sm, ok := b.sounds.Delete(id); ok {
		sm.meter.Unmount()
		sm.threshold.Close()
		sm.peer.Close()
	}
}

func (b *Board) publish(eventType, widgetID string, payload any) {
	evt, err := event.NewWidgetEvent(eventType, b.origin, widgetID, payload)
	if err == nil {
		err = b.bus.Publish(b.ctx, *evt)
	}
	if err != nil && !errors.Is(err, event.ErrClosed) {
		b.report.Fail(event.CodeWriteFail, err, "event", eventType)
	}
}

// Add creates a widget of kind with a fresh ID and the kind's defaults, and
// mounts it.
func (b *Board) Add(ctx context.Context, kind widget.Kind) (widget.Widget, error) {
	cfg, err := widget.Default(kind)
	if err != nil {
		return widget.Widget{}, err
	}
	if sc, ok := cfg.(widget.SoundConfig); ok {
		sc.TrafficLightThreshold = b.cfg.SoundThresholdDefault
		cfg = sc
	}
	w := widget.New(string(kind)+"-"+uuid.NewString()[:8], cfg)
	return w, b.AddWidget(ctx, w)
}

// AddWidget adds w to the store and mounts it.
func (b *Board) AddWidget(ctx context.Context, w widget.Widget) error {
	if err := b.store.Add(store.AsWriter(ctx, b.origin, b.clock), w); err != nil {
		return err
	}
	b.mountWidget(w)
	return nil
}

// Remove unmounts the widget and removes it from the store.
func (b *Board) Remove(ctx context.Context, id string) error {
	b.unmountWidget(id)
	return b.store.Remove(store.AsWriter(ctx, b.origin, b.clock), id)
}

// Config returns the board's configuration.
func (b *Board) Config() Config { return b.cfg }

// Origin returns the name this board writes under.
func (b *Board) Origin() string { return b.origin }

func (b *Board) Clock() clock.Clock { return b.clock }

func (b *Board) Loop() *schedule.Loop { return b.loop }

func (b *Board) Store() store.Store { return b.store }

// Writer returns the writer controllers use: metered, and queued when
// Store.WriteQueue is set.
func (b *Board) Writer() store.Writer { return b.writer }

// Flush waits until every queued write has reached the store. It returns at
// once on a synchronous board.
func (b *Board) Flush() {
	if b.async != nil {
		b.async.Flush()
	}
}

func (b *Board) Workspace() *store.Workspace { return b.ws }

func (b *Board) Bus() event.Bus { return b.bus }

func (b *Board) Errors() *event.ErrorBus { return b.errs }

func (b *Board) Metrics() *telemetry.Metrics { return b.metrics }

// Journal returns the write journal of the board's own store; nil when the
// store is shared.
func (b *Board) Journal() *store.Journal { return b.journal }

// Mounted lists mounted widgets in mount order.
func (b *Board) Mounted() []registry.Entry[widget.Kind] {
	return b.kinds.List()
}

// Timer returns the clock engine of a mounted time tool.
func (b *Board) Timer(id string) (*timer.Timer, bool) {
	tt, ok := b.timers.Get(id)
	if !ok {
		return nil, false
	}
	return tt.timer, true
}

// Completion returns the completion link of a mounted time tool.
func (b *Board) Completion(id string) (*automation.CompletionLink, bool) {
	tt, ok := b.timers.Get(id)
	if !ok {
		return nil, false
	}
	return tt.link, true
}

// Meter returns the meter of a mounted sound widget.
func (b *Board) Meter(id string) (*sensor.Meter, bool) {
	sm, ok := b.sounds.Get(id)
	if !ok {
		return nil, false
	}
	return sm.meter, true
}

// Threshold returns the traffic light link of a mounted sound widget.
func (b *Board) Threshold(id string) (*automation.ThresholdLink, bool) {
	sm, ok := b.sounds.Get(id)
	if !ok {
		return nil, false
	}
	return sm.threshold, true
}

// PeerSync returns the sensitivity sync of a mounted sound widget.
func (b *Board) PeerSync(id string) (*automation.PeerSync, bool) {
	sm, ok := b.sounds.Get(id)
	if !ok {
		return nil, false
	}
	return sm.peer, true
}

// Shutdown unmounts every controller, stops the loop, drains queued writes
// and closes what the board owns.
func (b *Board) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.loop.Cancel(b.pump)
	sub, errSub := b.sub, b.errSub
	b.mu.Unlock()

	b.report.Report(event.InfoSeverity, event.CodeShutdown, "board shutting down", "origin", b.origin)

	for _, e := range b.kinds.List() {
		b.unmountWidget(e.Key)
	}
	b.loop.Close()
	if sub != nil {
		sub.Close()
	}
	if b.async != nil {
		b.async.Close()
	}

	type closer struct {
		name string
		fn   func() error
	}
	var closers []closer
	if b.ownStore {
		closers = append(closers, closer{"store", b.store.Close})
	}
	if b.ownBus {
		closers = append(closers, closer{"bus", b.bus.Close})
	}

	errCh := make(chan error, len(closers))
	for _, c := range closers {
		go func() {
			if err := c.fn(); err != nil {
				errCh <- fmt.Errorf("%s shutdown: %w", c.name, err)
			} else {
				errCh <- nil
			}
		}()
	}

	var errs []error
	for range closers {
		select {
		case err := <-errCh:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
	}

	if errSub != nil {
		errSub.Close()
	}
	if b.ownErrs {
		b.errs.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
