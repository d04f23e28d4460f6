package event

import (
	"fmt"
	"time"
)

// ErrorEvent is a diagnostic emitted by the board's library packages: a
// failed write, a swallowed alert, an automation firing. These flow through
// the ErrorBus, separate from widget events, so observability never slows
// the frame loop.
type ErrorEvent struct {
	Severity ErrorSeverity

	// Code is a terse, stable identifier (e.g., "WRITE_FAIL")
	Code string

	Message string

	// Component identifies the source (e.g., "timer:t1", "link:threshold")
	Component string

	Timestamp time.Time

	// Context provides additional structured data
	Context map[string]any

	// Recoverable indicates if the board can continue operating
	Recoverable bool
}

// ErrorSeverity represents the severity level of an error event.
// Maps to standard log levels for easy integration with logging systems.
type ErrorSeverity int

const (
	DebugSeverity    ErrorSeverity = iota // Verbose debugging info
	InfoSeverity                          // Informational (e.g., "timer complete")
	WarningSeverity                       // Warning but not critical
	Error                                 // Error but recoverable
	CriticalSeverity                      // Critical, may cause crash
)

func (s ErrorSeverity) String() string {
	switch s {
	case DebugSeverity:
		return "DEBUG"
	case InfoSeverity:
		return "INFO"
	case WarningSeverity:
		return "WARNING"
	case Error:
		return "ERROR"
	case CriticalSeverity:
		return "CRITICAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Error Code Constants
//
// Terse, refactor-stable codes. They survive code changes better than
// string messages.
const (
	// Store writes
	CodeWriteFail       = "WRITE_FAIL"       // Store rejected a write
	CodeWriteSuppressed = "WRITE_SUPPRESSED" // Write skipped, target already holds the value

	// Clock engine
	CodeTimerStart    = "TIMER_START"    // Timer started or resumed
	CodeTimerStop     = "TIMER_STOP"     // Timer paused
	CodeTimerComplete = "TIMER_COMPLETE" // Timer reached zero
	CodeAlertFail     = "ALERT_FAIL"     // Alert playback failed (swallowed)

	// Automation links
	CodeLinkArmed       = "LINK_ARMED"       // Stabilization delay started
	CodeLinkSuperseded  = "LINK_SUPERSEDED"  // Pending value replaced before the delay elapsed
	CodeLinkFired       = "LINK_FIRED"       // Link issued its write
	CodeAmbiguousTarget = "AMBIGUOUS_TARGET" // More than one widget matched a unique target
	CodeTargetMissing   = "TARGET_MISSING"   // No widget of the target kind on the board

	// Board
	CodeDropSlow = "DROP_SLOW" // Event dropped (slow subscriber)
	CodeSyncSkew = "SYNC_SKEW" // Remote start instant corrected for clock skew
	CodeResync   = "RESYNC"    // Board re-read after lost bus events
	CodePanic    = "PANIC"     // Panic recovered
	CodeShutdown = "SHUTDOWN"  // Graceful shutdown initiated
)

// NewErrorEvent creates an error event with timestamp set to now.
func NewErrorEvent(severity ErrorSeverity, code, component, message string) ErrorEvent {
	return ErrorEvent{
		Severity:    severity,
		Code:        code,
		Component:   component,
		Message:     message,
		Timestamp:   time.Now(),
		Context:     make(map[string]any),
		Recoverable: true,
	}
}

// WithContext adds a context key-value pair.
func (e ErrorEvent) WithContext(key string, value any) ErrorEvent {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether this error is recoverable.
func (e ErrorEvent) WithRecoverable(recoverable bool) ErrorEvent {
	e.Recoverable = recoverable
	return e
}

// String returns a formatted string representation of the error event.
func (e ErrorEvent) String() string {
	return fmt.Sprintf("[%s] %s: %s (component=%s, recoverable=%t)",
		e.Severity, e.Code, e.Message, e.Component, e.Recoverable)
}
