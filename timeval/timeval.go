// Package timeval implements a mixed-unit duration: a non-negative real
// number of seconds that can be parsed from a bare number or a sequence of
// "<number><unit>" tokens, and converted back to any named unit.
package timeval

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Duration is a count of seconds. It is a defined float64 so the ordinary
// comparison operators (<, ==, >) work directly on it.
type Duration float64

// Canonical unit conversions, in seconds.
const (
	secondsPerMicrosecond = 1e-6
	secondsPerMillisecond = 1e-3
	secondsPerSecond      = 1.0
	secondsPerMinute      = 60.0
	secondsPerHour        = 3600.0
	secondsPerDay         = 86400.0
	secondsPerWeek        = 604800.0
	secondsPerMonth       = 2629800.0 // 1 M = 30.4375 d
	secondsPerYear        = 12 * secondsPerMonth
)

// ErrInvalidLiteral is returned when a string cannot be parsed as a Duration.
var ErrInvalidLiteral = errors.New("timeval: invalid duration literal")

var tokenPattern = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)\s*(us|ms|s|m|h|d|w|M|y)\s*`)

// unitSeconds maps an accepted unit suffix to its length in seconds. "m" is
// minutes and "M" is months; the grammar is case-sensitive for this reason.
var unitSeconds = map[string]float64{
	"us": secondsPerMicrosecond,
	"ms": secondsPerMillisecond,
	"s":  secondsPerSecond,
	"m":  secondsPerMinute,
	"h":  secondsPerHour,
	"d":  secondsPerDay,
	"w":  secondsPerWeek,
	"M":  secondsPerMonth,
	"y":  secondsPerYear,
}

// Parse accepts either a bare number (interpreted as seconds) or a string of
// one or more "<number><unit>" tokens, optionally space-separated, whose
// contributions are summed (e.g. "1d 23m 2ms").
func Parse(literal string) (Duration, error) {
	trimmed := strings.TrimSpace(literal)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLiteral, literal)
	}

	if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("%w: %q is negative", ErrInvalidLiteral, literal)
		}
		return Duration(seconds), nil
	}

	remaining := trimmed
	var total float64
	consumedAny := false
	for remaining != "" {
		loc := tokenPattern.FindStringSubmatchIndex(remaining)
		if loc == nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLiteral, literal)
		}
		match := tokenPattern.FindStringSubmatch(remaining)
		amount, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLiteral, literal)
		}
		total += amount * unitSeconds[match[2]]
		consumedAny = true
		remaining = remaining[loc[1]:]
	}
	if !consumedAny {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLiteral, literal)
	}

	return Duration(total), nil
}

// MustParse is Parse but panics on error; useful for literal test fixtures.
func MustParse(literal string) Duration {
	d, err := Parse(literal)
	if err != nil {
		panic(err)
	}
	return d
}

// Seconds returns the duration expressed in seconds.
func (d Duration) Seconds() float64 { return float64(d) }

// Microseconds returns the duration expressed in microseconds.
func (d Duration) Microseconds() float64 { return float64(d) / secondsPerMicrosecond }

// Milliseconds returns the duration expressed in milliseconds.
func (d Duration) Milliseconds() float64 { return float64(d) / secondsPerMillisecond }

// Minutes returns the duration expressed in minutes.
func (d Duration) Minutes() float64 { return float64(d) / secondsPerMinute }

// Hours returns the duration expressed in hours.
func (d Duration) Hours() float64 { return float64(d) / secondsPerHour }

// Days returns the duration expressed in days.
func (d Duration) Days() float64 { return float64(d) / secondsPerDay }

// Weeks returns the duration expressed in weeks.
func (d Duration) Weeks() float64 { return float64(d) / secondsPerWeek }

// Months returns the duration expressed in months (1 M = 30.4375 d).
func (d Duration) Months() float64 { return float64(d) / secondsPerMonth }

// Years returns the duration expressed in years (1 y = 12 M).
func (d Duration) Years() float64 { return float64(d) / secondsPerYear }

// Compare returns -1, 0, or 1 as d is less than, equal to, or greater than other.
func (d Duration) Compare(other Duration) int {
	switch {
	case d < other:
		return -1
	case d > other:
		return 1
	default:
		return 0
	}
}

func (d Duration) String() string {
	return fmt.Sprintf("%gs", float64(d))
}
