package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/automation"
	"github.com/BYTE-6D65/liveboard/pkg/board"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/sensor"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/timer"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

const (
	categoryTimer      = "Time Tool"
	categoryAutomation = "Automation"
	categorySync       = "Multi-viewer Sync"
)

func persisted[T widget.Config](b *board.Board, id string) (T, error) {
	var zero T
	w, err := b.Store().Widget(context.Background(), id)
	if err != nil {
		return zero, err
	}
	cfg, ok := widget.As[T](w)
	if !ok {
		return zero, fmt.Errorf("widget %s is a %s", id, w.Kind)
	}
	return cfg, nil
}

func timerOf(b *board.Board, id string) (*timer.Timer, error) {
	t, ok := b.Timer(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrWidgetNotFound, id)
	}
	return t, nil
}

func trafficWrites(j *store.Journal, id string) int {
	if j == nil {
		return 0
	}
	return len(j.ForWidget(id))
}

// CountdownTraffic: a ten second countdown reaches zero, plays its alert
// once and turns the traffic light red.
type CountdownTraffic struct {
	*Base

	b      *board.Board
	alerts []string
}

func NewCountdownTraffic() Scenario {
	return &CountdownTraffic{
		Base: NewBase("countdown-traffic", categoryAutomation,
			"A finished countdown plays its alert once and turns the traffic light red"),
	}
}

func (s *CountdownTraffic) Setup(ctx context.Context) error {
	alert := timer.PlayerFunc(func(sound string) error {
		s.alerts = append(s.alerts, sound)
		return nil
	})
	b, err := s.NewBoard(ctx, "front", 0, board.WithAlertPlayer(alert))
	if err != nil {
		return err
	}
	s.b = b
	if err := s.Seed(ctx,
		widget.New("timer-1", widget.TimeToolConfig{
			Mode: widget.ModeTimer, Duration: 10, ElapsedTime: 10,
			SelectedSound:        widget.SoundChime,
			TimerEndTrafficLight: widget.Color(widget.TrafficRed),
		}),
		widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}),
	); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *CountdownTraffic) Run(ctx context.Context) error {
	t, err := timerOf(s.b, "timer-1")
	if err != nil {
		return err
	}
	t.Start()
	if err := s.Step(ctx, 9*time.Second); err != nil {
		return err
	}
	s.Metric("display_at_9s", t.Formatted())
	return s.Step(ctx, 1500*time.Millisecond)
}

func (s *CountdownTraffic) Validate() *Result {
	t, _ := s.b.Timer("timer-1")
	AssertEqual(s.Base, "Countdown shows 00:00", "00:00", t.Formatted())
	AssertFalse(s.Base, "Countdown stopped", t.Snapshot().Running, "timer still running after zero")

	traffic, err := persisted[widget.TrafficConfig](s.b, "traffic-1")
	if Check(s.Base, "Traffic light readable", err) {
		AssertEqual(s.Base, "Traffic light turned red", widget.TrafficRed, traffic.Active)
	}
	AssertEqual(s.Base, "Traffic light written once", 1, trafficWrites(s.b.Journal(), "traffic-1"))
	AssertEqual(s.Base, "Alert played once", 1, len(s.alerts))
	if len(s.alerts) > 0 {
		AssertEqual(s.Base, "Selected alert played", widget.SoundChime, s.alerts[0])
	}
	AssertEqual(s.Base, "Completion reported once", 1, s.Reported(event.CodeTimerComplete))

	link, _ := s.b.Completion("timer-1")
	AssertEqual(s.Base, "Completion link fired", automation.Fired, link.State())

	s.Metric("journal_records", s.b.Journal().Len())
	return s.Finish()
}

// PauseResume: stopping freezes the display and persists the value; the
// next start resumes from it.
type PauseResume struct {
	*Base

	b         *board.Board
	paused    float64
	heldAfter float64
	resumed   float64
	reset     float64
	stored    float64
}

func NewPauseResume() Scenario {
	return &PauseResume{
		Base: NewBase("pause-resume", categoryTimer,
			"A paused countdown holds its value and resumes from it"),
	}
}

func (s *PauseResume) Setup(ctx context.Context) error {
	b, err := s.NewBoard(ctx, "front", 0)
	if err != nil {
		return err
	}
	s.b = b
	if err := s.Seed(ctx, widget.New("timer-1", widget.TimeToolConfig{
		Mode: widget.ModeTimer, Duration: 30, ElapsedTime: 30,
	})); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *PauseResume) Run(ctx context.Context) error {
	t, err := timerOf(s.b, "timer-1")
	if err != nil {
		return err
	}

	t.Start()
	if err := s.Step(ctx, 5*time.Second); err != nil {
		return err
	}
	t.Stop()
	s.paused = t.Display()
	cfg, err := persisted[widget.TimeToolConfig](s.b, "timer-1")
	if err != nil {
		return err
	}
	s.stored = cfg.ElapsedTime

	if err := s.Step(ctx, 3*time.Second); err != nil {
		return err
	}
	s.heldAfter = t.Display()

	t.Start()
	if err := s.Step(ctx, 5*time.Second); err != nil {
		return err
	}
	s.resumed = t.Display()

	t.Reset()
	s.reset = t.Display()
	return nil
}

func (s *PauseResume) Validate() *Result {
	AssertNear(s.Base, "Paused near 25s", 25, s.paused, 0.05)
	AssertNear(s.Base, "Pause value persisted", s.paused, s.stored, 1e-9)
	AssertNear(s.Base, "Display held while paused", s.paused, s.heldAfter, 1e-9)
	AssertNear(s.Base, "Resumed from the paused value", s.paused-5, s.resumed, 0.05)
	AssertNear(s.Base, "Reset restores the duration", 30, s.reset, 1e-9)

	t, _ := s.b.Timer("timer-1")
	AssertFalse(s.Base, "Reset stops the clock", t.Ticking(), "tick still scheduled after reset")
	s.Metric("paused", s.paused)
	s.Metric("resumed", s.resumed)
	return s.Finish()
}

// SoundHold: a sustained loud room turns the light red one stabilization
// delay after it got loud.
type SoundHold struct {
	*Base

	b *board.Board
}

// soundHoldOnset is when the scripted room gets loud.
const soundHoldOnset = 3 * time.Second

func NewSoundHold() Scenario {
	return &SoundHold{
		Base: NewBase("sound-hold", categoryAutomation,
			"A sustained level over the threshold writes red after the stabilization delay"),
	}
}

func (s *SoundHold) Setup(ctx context.Context) error {
	src := sensor.NewScript(epoch,
		sensor.Step{After: 0, Value: 5},
		sensor.Step{After: soundHoldOnset, Value: 60},
	)
	b, err := s.NewBoard(ctx, "front", 0, board.WithSoundSource("sound-1", src))
	if err != nil {
		return err
	}
	s.b = b
	sound := widget.SoundConfig{Sensitivity: 1, AutoTrafficLight: true, TrafficLightThreshold: 4}
	if err := s.Seed(ctx,
		widget.New("sound-1", sound),
		widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}),
	); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *SoundHold) Run(ctx context.Context) error {
	return s.Step(ctx, 6*time.Second)
}

func (s *SoundHold) Validate() *Result {
	writes := s.b.Journal().ForWidget("traffic-1")
	AssertEqual(s.Base, "Traffic light written once", 1, len(writes))
	if len(writes) > 0 {
		hold := writes[0].At.Sub(epoch) - soundHoldOnset
		s.Metric("hold_ms", hold.Milliseconds())
		delay := s.Config().StabilizationDelay
		AssertDurationInRange(s.Base, "Red written one delay after onset", delay, delay+3*s.Config().FrameInterval, hold)
	}

	traffic, err := persisted[widget.TrafficConfig](s.b, "traffic-1")
	if Check(s.Base, "Traffic light readable", err) {
		AssertEqual(s.Base, "Traffic light red", widget.TrafficRed, traffic.Active)
	}
	m, _ := s.b.Meter("sound-1")
	AssertEqual(s.Base, "Meter at the loudest band", 4, m.Level())
	AssertCountAtLeast(s.Base, "Unchanged green was suppressed", 1, s.Reported(event.CodeWriteSuppressed))
	return s.Finish()
}

// NoFlap: a level that keeps flipping faster than the stabilization delay
// never reaches the traffic light.
type NoFlap struct {
	*Base

	b *board.Board
}

func NewNoFlap() Scenario {
	return &NoFlap{
		Base: NewBase("no-flap", categoryAutomation,
			"A level flipping faster than the stabilization delay writes nothing"),
	}
}

func (s *NoFlap) Setup(ctx context.Context) error {
	src := sensor.Square{Start: epoch, Period: 1200 * time.Millisecond, Low: 5, High: 60}
	b, err := s.NewBoard(ctx, "front", 0, board.WithSoundSource("sound-1", src))
	if err != nil {
		return err
	}
	s.b = b
	if err := s.Seed(ctx,
		widget.New("sound-1", widget.SoundConfig{Sensitivity: 1, AutoTrafficLight: true, TrafficLightThreshold: 4}),
		widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficYellow}),
	); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *NoFlap) Run(ctx context.Context) error {
	return s.Step(ctx, 8*time.Second)
}

func (s *NoFlap) Validate() *Result {
	AssertEqual(s.Base, "Traffic light never written", 0, trafficWrites(s.b.Journal(), "traffic-1"))
	traffic, err := persisted[widget.TrafficConfig](s.b, "traffic-1")
	if Check(s.Base, "Traffic light readable", err) {
		AssertEqual(s.Base, "Traffic light unchanged", widget.TrafficYellow, traffic.Active)
	}
	superseded := s.Reported(event.CodeLinkSuperseded)
	s.Metric("superseded", superseded)
	AssertCountAtLeast(s.Base, "Pending values superseded", 10, superseded)
	AssertEqual(s.Base, "Link never fired", 0, s.Reported(event.CodeLinkFired))

	th, _ := s.b.Threshold("sound-1")
	AssertEqual(s.Base, "Link still armed", automation.Armed, th.State())
	return s.Finish()
}

// PeerSync: the expectations widget drives the microphone sensitivity.
type PeerSync struct {
	*Base

	b      *board.Board
	levels []int
	sens   []float64
}

func NewPeerSync() Scenario {
	return &PeerSync{
		Base: NewBase("peer-sync", categoryAutomation,
			"Changing the expected voice level retunes the sound meter"),
	}
}

func (s *PeerSync) Setup(ctx context.Context) error {
	b, err := s.NewBoard(ctx, "front", 0, board.WithSoundSource("sound-1", sensor.Constant(20)))
	if err != nil {
		return err
	}
	s.b = b
	if err := s.Seed(ctx,
		widget.New("sound-1", widget.SoundConfig{Sensitivity: 1, TrafficLightThreshold: 4, SyncExpectations: true}),
		widget.New("expect-1", widget.ExpectationsConfig{VoiceLevel: widget.Int(widget.VoiceConversation)}),
	); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *PeerSync) sample(ctx context.Context) error {
	if err := s.Step(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	m, _ := s.b.Meter("sound-1")
	s.levels = append(s.levels, m.Level())
	s.sens = append(s.sens, m.Sensitivity())
	return nil
}

func (s *PeerSync) Run(ctx context.Context) error {
	if err := s.sample(ctx); err != nil {
		return err
	}
	for _, level := range []int{widget.VoiceSilence, widget.VoiceOutside} {
		if err := s.b.Apply(board.Action{Widget: "expect-1", Op: board.OpWrite, Patch: widget.VoiceLevel(level)}); err != nil {
			return err
		}
		if err := s.sample(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *PeerSync) Validate() *Result {
	if len(s.sens) != 3 {
		s.result.AddError(fmt.Errorf("expected 3 samples, got %d", len(s.sens)))
		return s.Finish()
	}
	AssertNear(s.Base, "Conversation sets 1.5", 1.5, s.sens[0], 1e-9)
	AssertNear(s.Base, "Silence sets 4.0", 4.0, s.sens[1], 1e-9)
	AssertNear(s.Base, "Outside sets 0.5", 0.5, s.sens[2], 1e-9)
	AssertEqual(s.Base, "Level follows sensitivity (conversation)", 3, s.levels[0])
	AssertEqual(s.Base, "Level follows sensitivity (silence)", 4, s.levels[1])
	AssertEqual(s.Base, "Level follows sensitivity (outside)", 1, s.levels[2])

	sound, err := persisted[widget.SoundConfig](s.b, "sound-1")
	if Check(s.Base, "Sound widget readable", err) {
		AssertNear(s.Base, "Sensitivity persisted", 0.5, sound.Sensitivity, 1e-9)
	}
	s.Metric("sensitivities", fmt.Sprint(s.sens))
	return s.Finish()
}

// TwoViewers: two boards with disagreeing clocks share one store. The
// second follows the first's countdown and the light is written once.
type TwoViewers struct {
	*Base

	front   *board.Board
	back    *board.Board
	journal *store.Journal

	midFront, midBack float64
	backRunning       bool
}

// viewerSkew is how far the back viewer's clock runs ahead.
const viewerSkew = 3 * time.Second

func NewTwoViewers() Scenario {
	return &TwoViewers{
		Base: NewBase("two-viewers", categorySync,
			"A second viewer with a skewed clock follows a shared countdown"),
	}
}

func (s *TwoViewers) Setup(ctx context.Context) error {
	bus := event.NewInMemoryBus(event.WithBufferSize(256), event.WithBusName("shared"))
	s.OnTeardown(bus.Close)
	s.journal = store.NewJournal(0)
	shared := store.NewMemoryStore(store.WithBus(bus), store.WithJournal(s.journal))
	s.OnTeardown(shared.Close)

	front, err := s.NewBoard(ctx, "front", 0, board.WithStore(shared), board.WithBus(bus))
	if err != nil {
		return err
	}
	back, err := s.NewBoard(ctx, "back", viewerSkew, board.WithStore(shared), board.WithBus(bus))
	if err != nil {
		return err
	}
	s.front, s.back = front, back

	if err := s.Seed(ctx,
		widget.New("timer-1", widget.TimeToolConfig{
			Mode: widget.ModeTimer, Duration: 10, ElapsedTime: 10,
			TimerEndTrafficLight: widget.Color(widget.TrafficRed),
		}),
		widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}),
	); err != nil {
		return err
	}
	return s.MountAll(ctx)
}

func (s *TwoViewers) Run(ctx context.Context) error {
	front, err := timerOf(s.front, "timer-1")
	if err != nil {
		return err
	}
	back, err := timerOf(s.back, "timer-1")
	if err != nil {
		return err
	}

	front.Start()
	if err := s.Step(ctx, 5*time.Second); err != nil {
		return err
	}
	s.midFront, s.midBack = front.Display(), back.Display()
	s.backRunning = back.Snapshot().Running
	return s.Step(ctx, 5500*time.Millisecond)
}

func (s *TwoViewers) Validate() *Result {
	AssertTrue(s.Base, "Back viewer follows the start", s.backRunning, "back viewer never started")
	AssertNear(s.Base, "Viewers agree despite skew", s.midFront, s.midBack, 0.05)
	AssertCountAtLeast(s.Base, "Skew correction reported", 1, s.Reported(event.CodeSyncSkew))

	front, _ := s.front.Timer("timer-1")
	back, _ := s.back.Timer("timer-1")
	AssertEqual(s.Base, "Front shows 00:00", "00:00", front.Formatted())
	AssertEqual(s.Base, "Back shows 00:00", "00:00", back.Formatted())
	AssertEqual(s.Base, "Traffic light written once", 1, trafficWrites(s.journal, "traffic-1"))

	traffic, err := persisted[widget.TrafficConfig](s.back, "traffic-1")
	if Check(s.Base, "Traffic light readable", err) {
		AssertEqual(s.Base, "Traffic light red", widget.TrafficRed, traffic.Active)
	}
	s.Metric("mid_front", s.midFront)
	s.Metric("mid_back", s.midBack)
	return s.Finish()
}
