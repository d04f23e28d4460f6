package widget

import (
	"fmt"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
)

// Mode selects countdown or count-up behavior of a time tool.
type Mode string

const (
	ModeTimer     Mode = "timer"
	ModeStopwatch Mode = "stopwatch"
)

// Alert sounds a time tool can play on completion.
const (
	SoundChime = "Chime"
	SoundGong  = "Gong"
	SoundBlip  = "Blip"
	SoundAlert = "Alert"
)

// TrafficColor is the lit lamp of a traffic light. The empty color means
// no lamp is lit.
type TrafficColor string

const (
	TrafficNone   TrafficColor = ""
	TrafficRed    TrafficColor = "red"
	TrafficYellow TrafficColor = "yellow"
	TrafficGreen  TrafficColor = "green"
)

// ParseTrafficColor validates a traffic color name.
func ParseTrafficColor(s string) (TrafficColor, error) {
	switch c := TrafficColor(s); c {
	case TrafficNone, TrafficRed, TrafficYellow, TrafficGreen:
		return c, nil
	}
	return "", fmt.Errorf("widget: unknown traffic color %q", s)
}

// Voice levels shown by the expectations widget.
const (
	VoiceSilence = iota
	VoiceWhisper
	VoiceConversation
	VoicePresenter
	VoiceOutside
)

// VoiceLevelNames maps voice levels to their labels.
var VoiceLevelNames = []string{"Silence", "Whisper", "Conversation", "Presenter", "Outside"}

// ValidVoiceLevel reports whether level is one of the five voice levels.
func ValidVoiceLevel(level int) bool {
	return level >= VoiceSilence && level <= VoiceOutside
}

// TimeToolConfig is the persisted state of a timer/stopwatch widget.
type TimeToolConfig struct {
	Mode          Mode    `json:"mode"`
	Duration      float64 `json:"duration"`
	ElapsedTime   float64 `json:"elapsedTime"`
	IsRunning     bool    `json:"isRunning"`
	StartTime     *int64  `json:"startTime"` // Unix nanoseconds; null when not running
	SelectedSound string  `json:"selectedSound"`

	TimerEndVoiceLevel   *int          `json:"timerEndVoiceLevel"`
	TimerEndTrafficLight *TrafficColor `json:"timerEndTrafficLight"`
}

// Kind implements Config.
func (TimeToolConfig) Kind() Kind { return KindTimeTool }

// Start returns the start instant, if the tool is running.
func (c TimeToolConfig) Start() (clock.MonoTime, bool) {
	if !c.IsRunning || c.StartTime == nil {
		return 0, false
	}
	return clock.MonoTime(*c.StartTime), true
}

// TrafficConfig is the persisted state of a traffic light.
type TrafficConfig struct {
	Active TrafficColor `json:"active,omitempty"`
}

// Kind implements Config.
func (TrafficConfig) Kind() Kind { return KindTraffic }

// ExpectationsConfig is the persisted state of the classroom expectations
// widget. Only the voice level takes part in automation.
type ExpectationsConfig struct {
	VoiceLevel      *int   `json:"voiceLevel"`
	WorkMode        string `json:"workMode,omitempty"`
	InteractionMode string `json:"interactionMode,omitempty"`
}

// Kind implements Config.
func (ExpectationsConfig) Kind() Kind { return KindExpectations }

// SoundConfig is the persisted state of a sound meter.
type SoundConfig struct {
	Sensitivity           float64 `json:"sensitivity"`
	Visual                string  `json:"visual"`
	AutoTrafficLight      bool    `json:"autoTrafficLight"`
	TrafficLightThreshold int     `json:"trafficLightThreshold"`
	SyncExpectations      bool    `json:"syncExpectations"`
}

// Kind implements Config.
func (SoundConfig) Kind() Kind { return KindSound }

// Int returns a pointer to v, for optional config fields.
func Int(v int) *int { return &v }

// Color returns a pointer to c, for optional config fields.
func Color(c TrafficColor) *TrafficColor { return &c }
