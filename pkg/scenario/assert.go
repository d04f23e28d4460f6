package scenario

import (
	"fmt"
	"math"
	"time"
)

// AssertEqual checks that actual matches expected.
func AssertEqual[T comparable](b *Base, name string, expected, actual T) {
	passed := expected == actual
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected %v, got %v", expected, actual)
	}
	b.Assert(name, expected, actual, passed, message)
}

// AssertNear checks that actual is within tolerance of expected.
func AssertNear(b *Base, name string, expected, actual, tolerance float64) {
	diff := math.Abs(expected - actual)
	passed := diff <= tolerance
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected %.3f (±%.3f), got %.3f (diff: %.3f)", expected, tolerance, actual, diff)
	}
	b.Assert(name, fmt.Sprintf("%.3f ± %.3f", expected, tolerance), actual, passed, message)
}

// AssertTrue checks a condition.
func AssertTrue(b *Base, name string, condition bool, message string) {
	b.Assert(name, true, condition, condition, message)
}

// AssertFalse checks that a condition does not hold.
func AssertFalse(b *Base, name string, condition bool, message string) {
	b.Assert(name, false, condition, !condition, message)
}

// AssertCountAtLeast checks that a count reached min.
func AssertCountAtLeast(b *Base, name string, min, actual int) {
	passed := actual >= min
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected count >= %d, got %d", min, actual)
	}
	b.Assert(name, fmt.Sprintf(">= %d", min), actual, passed, message)
}

// AssertDurationInRange checks that actual lies in [min, max].
func AssertDurationInRange(b *Base, name string, min, max, actual time.Duration) {
	passed := actual >= min && actual <= max
	message := ""
	if !passed {
		message = fmt.Sprintf("Expected duration in [%s, %s], got %s", min, max, actual)
	}
	b.Assert(name, fmt.Sprintf("[%s, %s]", min, max), actual.String(), passed, message)
}

// Check records err as a failed assertion when it is not nil. It reports
// whether err was nil.
func Check(b *Base, name string, err error) bool {
	if err == nil {
		return true
	}
	b.Assert(name, "no error", err.Error(), false, err.Error())
	return false
}
