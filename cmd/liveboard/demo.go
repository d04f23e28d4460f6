package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/BYTE-6D65/liveboard/pkg/board"
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/sensor"
	"github.com/BYTE-6D65/liveboard/pkg/timer"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

const (
	demoTimer   = "timer-1"
	demoTraffic = "traffic-1"
	demoSound   = "sound-1"
	demoExpect  = "expect-1"

	// notes kept on screen
	maxNotes = 6
)

var demoBoard = board.File{Widgets: []board.WidgetSpec{
	{ID: demoTimer, Kind: string(widget.KindTimeTool), Config: map[string]any{
		"duration": 120, "elapsedTime": 120, "timerEndTrafficLight": "red",
	}},
	{ID: demoTraffic, Kind: string(widget.KindTraffic), Config: map[string]any{"active": "green"}},
	{ID: demoSound, Kind: string(widget.KindSound), Config: map[string]any{
		"autoTrafficLight": true, "syncExpectations": true,
	}},
	{ID: demoExpect, Kind: string(widget.KindExpectations), Config: map[string]any{"voiceLevel": 2}},
}}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Interactive board in the terminal",
	Long: `Run a four-widget board in the terminal: a countdown, a traffic
light, a sound meter listening to a simulated room, and the expected voice
level. Make the room louder and watch the light follow after the hold.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newDemo(cmd.Context())
		if err != nil {
			return err
		}
		defer m.close()

		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

// room is the simulated classroom the sound meter hears.
type room struct {
	noise *sensor.Noise
}

func (r *room) Spectrum(now clock.MonoTime, buf []uint8) { r.noise.Spectrum(now, buf) }

func (r *room) louder(d int) {
	r.noise.Mean = uint8(max(0, min(120, int(r.noise.Mean)+d)))
}

type frameMsg time.Time

type demo struct {
	b     *board.Board
	room  *room
	diag  *event.ErrorSubscription
	notes []string
	err   error
}

func newDemo(ctx context.Context) (*demo, error) {
	m := &demo{room: &room{noise: sensor.NewNoise(uint64(time.Now().UnixNano()), 10, 4)}}
	alert := timer.PlayerFunc(func(sound string) error {
		m.note("🔔 " + sound)
		return nil
	})

	b, err := board.New(ctx, cfg,
		board.WithSoundSource(demoSound, m.room),
		board.WithAlertPlayer(alert),
	)
	if err != nil {
		return nil, err
	}
	m.b = b
	if m.diag, err = b.Errors().Subscribe(ctx); err != nil {
		m.close()
		return nil, err
	}
	if err := demoBoard.Seed(ctx, b.Store()); err != nil {
		m.close()
		return nil, err
	}
	if err := b.Mount(ctx); err != nil {
		m.close()
		return nil, err
	}
	return m, nil
}

func (m *demo) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.b.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func (m *demo) note(s string) {
	m.notes = append(m.notes, s)
	if len(m.notes) > maxNotes {
		m.notes = m.notes[len(m.notes)-maxNotes:]
	}
}

func (m *demo) frame() tea.Cmd {
	return tea.Tick(cfg.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m *demo) Init() tea.Cmd { return m.frame() }

func (m *demo) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case frameMsg:
		m.b.Loop().Frame()
		m.collect()
		return m, m.frame()
	}
	return m, nil
}

// collect keeps the interesting diagnostics for the notes pane.
func (m *demo) collect() {
	for {
		select {
		case e, ok := <-m.diag.Events():
			if !ok {
				return
			}
			if e.Severity >= event.InfoSeverity || verbose {
				m.note(fmt.Sprintf("%s %s", e.Code, e.Message))
			}
		default:
			return
		}
	}
}

func (m *demo) handleKey(msg tea.KeyMsg) tea.Cmd {
	t, _ := m.b.Timer(demoTimer)
	m.err = nil

	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit
	case " ":
		if t.Snapshot().Running {
			t.Stop()
		} else {
			t.Start()
		}
	case "r":
		t.Reset()
	case "m":
		if t.Snapshot().Mode == widget.ModeTimer {
			t.SetMode(widget.ModeStopwatch)
		} else {
			t.SetMode(widget.ModeTimer)
		}
	case "+", "=":
		t.SetTime(t.Snapshot().BaseDuration + 60)
	case "-":
		t.SetTime(max(0, t.Snapshot().BaseDuration-60))
	case "up", "k":
		m.room.louder(10)
	case "down", "j":
		m.room.louder(-10)
	case "1", "2", "3", "4", "5":
		m.write(demoExpect, widget.VoiceLevel(int(msg.String()[0]-'1')))
	case "g":
		m.write(demoTraffic, widget.TrafficActive(widget.TrafficGreen))
	case "y":
		m.write(demoTraffic, widget.TrafficActive(widget.TrafficYellow))
	case "R":
		m.write(demoTraffic, widget.TrafficActive(widget.TrafficRed))
	case "a":
		m.write(demoSound, widget.Patch{"autoTrafficLight": !m.sound().AutoTrafficLight})
	case "s":
		m.write(demoSound, widget.Patch{"syncExpectations": !m.sound().SyncExpectations})
	}
	return nil
}

func (m *demo) write(id string, p widget.Patch) {
	m.err = m.b.Apply(board.Action{Widget: id, Op: board.OpWrite, Patch: p})
}

func (m *demo) sound() widget.SoundConfig {
	w, err := m.b.Store().Widget(context.Background(), demoSound)
	if err != nil {
		return widget.SoundConfig{}
	}
	c, _ := widget.As[widget.SoundConfig](w)
	return c
}

func (m *demo) traffic() widget.TrafficColor {
	w, err := m.b.Store().Widget(context.Background(), demoTraffic)
	if err != nil {
		return widget.TrafficNone
	}
	c, _ := widget.As[widget.TrafficConfig](w)
	return c.Active
}

func (m *demo) voice() int {
	w, err := m.b.Store().Widget(context.Background(), demoExpect)
	if err != nil {
		return -1
	}
	c, _ := widget.As[widget.ExpectationsConfig](w)
	if c.VoiceLevel == nil {
		return -1
	}
	return *c.VoiceLevel
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4")).
		PaddingLeft(2)

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7D56F4")).
		Padding(0, 2).
		Width(30)

	clockStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA"))

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262")).
		PaddingTop(1).
		PaddingLeft(2)

	noteStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00A9E0")).
		PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5555")).
		PaddingLeft(2)

	lampColors = map[widget.TrafficColor]lipgloss.Color{
		widget.TrafficRed:    "#FF5555",
		widget.TrafficYellow: "#FFB800",
		widget.TrafficGreen:  "#50FA7B",
	}

	bandColors = map[string]lipgloss.Color{
		"blue":   "#00A9E0",
		"green":  "#50FA7B",
		"yellow": "#FFB800",
		"orange": "#FF8C00",
		"red":    "#FF5555",
	}

	voiceNames = []string{"Silence", "Whisper", "Conversation", "Presenter", "Outside"}
)

func (m *demo) View() string {
	t, _ := m.b.Timer(demoTimer)
	meter, _ := m.b.Meter(demoSound)
	th, _ := m.b.Threshold(demoSound)

	snap := t.Snapshot()
	state := "paused"
	if snap.Running {
		state = "running"
	}
	clockPanel := panelStyle.Render(fmt.Sprintf("%s\n\n%s\n%s", string(snap.Mode),
		clockStyle.Render(t.Formatted()), state))

	var lamps []string
	lit := m.traffic()
	for _, c := range []widget.TrafficColor{widget.TrafficRed, widget.TrafficYellow, widget.TrafficGreen} {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
		if c == lit {
			style = lipgloss.NewStyle().Foreground(lampColors[c])
		}
		lamps = append(lamps, style.Render("●"))
	}
	trafficPanel := panelStyle.Render("traffic\n\n" + strings.Join(lamps, "  "))

	band := meter.Band()
	bar := lipgloss.NewStyle().Foreground(bandColors[band.Color]).
		Render(strings.Repeat("█", int(meter.Volume()/4)))
	desired := "-"
	if eff, ok := th.Desired(); ok {
		desired = eff.String()
	}
	sound := m.sound()
	soundPanel := panelStyle.Render(fmt.Sprintf("sound  %s\n%s\nvolume %.0f  sensitivity %.1f\nauto %v  sync %v\nlink %s → %s",
		band.Name, bar, meter.Volume(), meter.Sensitivity(),
		sound.AutoTrafficLight, sound.SyncExpectations, th.State(), desired))

	voice := "unset"
	if v := m.voice(); v >= 0 && v < len(voiceNames) {
		voice = voiceNames[v]
	}
	expectPanel := panelStyle.Render("expected voice\n\n" + voice)

	s := titleStyle.Render("Liveboard - "+m.b.Origin()) + "\n\n"
	s += lipgloss.JoinHorizontal(lipgloss.Top, clockPanel, trafficPanel) + "\n"
	s += lipgloss.JoinHorizontal(lipgloss.Top, soundPanel, expectPanel) + "\n"

	for _, n := range m.notes {
		s += noteStyle.Render(n) + "\n"
	}
	if m.err != nil {
		s += errorStyle.Render(m.err.Error()) + "\n"
	}

	s += helpStyle.Render("space start/stop • r reset • m mode • +/- minute • ↑/↓ room • 1-5 voice\n" +
		"g/y/R light • a auto light • s sync • q quit")
	return s
}
