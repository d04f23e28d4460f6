package timer

import (
	"fmt"
	"math"

	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// Absorbs float error so 0.3s renders as .3, not .2.
const epsilon = 1e-9

// FormatTimer renders whole seconds, floored, as MM:SS. Minutes are not
// capped at two digits.
func FormatTimer(seconds float64) string {
	total := int64(math.Floor(max(0, seconds) + epsilon))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatStopwatch renders tenths, floored, as MM:SS.t.
func FormatStopwatch(seconds float64) string {
	tenths := int64(math.Floor(max(0, seconds)*10 + epsilon))
	total := tenths / 10
	return fmt.Sprintf("%02d:%02d.%d", total/60, total%60, tenths%10)
}

// Format picks the format for mode.
func Format(mode widget.Mode, seconds float64) string {
	if mode == widget.ModeStopwatch {
		return FormatStopwatch(seconds)
	}
	return FormatTimer(seconds)
}
