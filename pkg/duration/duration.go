// Package duration provides human-readable duration parsing.
// It extends Go's standard time.ParseDuration with day and week units,
// with optional whitespace between number and unit:
//
//   - d, day(s): days (24 hours)
//   - w, wk, week(s): weeks (7 days)
//
// Examples:
//   - "30 days" = 30 days
//   - "1w2d12h" = 1 week, 2 days, 12 hours
//   - "720h" = 720 hours (standard Go format still works)
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

// extendedPattern matches day/week units with optional whitespace before
// the unit, e.g. "30d", "30 days", "2weeks".
var extendedPattern = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)

// wordPattern matches standard units written as full words, e.g. "3 hours".
var wordPattern = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?|milliseconds?|ms)`)

var wordReplacements = map[string]string{
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m",
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
	"millisecond": "ms", "milliseconds": "ms", "ms": "ms",
}

// hourMultipliers maps extended units to their hour count.
var hourMultipliers = map[string]int64{
	"w": 7 * 24, "wk": 7 * 24, "wks": 7 * 24, "week": 7 * 24, "weeks": 7 * 24,
	"d": 24, "day": 24, "days": 24,
}

// Parse parses a human-readable duration string. Extended units (days,
// weeks) are converted to hours before delegating to time.ParseDuration.
func Parse(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	var totalHours int64
	remaining := extendedPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedPattern.FindStringSubmatch(match)
		if len(parts) == 3 {
			value, _ := strconv.ParseInt(parts[1], 10, 64)
			if mult, ok := hourMultipliers[strings.ToLower(parts[2])]; ok {
				totalHours += value * mult
			}
		}
		return ""
	})

	remaining = wordPattern.ReplaceAllStringFunc(remaining, func(match string) string {
		parts := wordPattern.FindStringSubmatch(match)
		if len(parts) == 3 {
			if short, ok := wordReplacements[strings.ToLower(parts[2])]; ok {
				return parts[1] + short
			}
		}
		return match
	})

	// Go's duration parser does not accept spaces between units.
	remaining = strings.Join(strings.Fields(remaining), "")

	var durationStr string
	if totalHours > 0 {
		durationStr = fmt.Sprintf("%dh", totalHours)
	}
	durationStr += remaining
	if durationStr == "" {
		durationStr = "0s"
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	if negative {
		d = -d
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Use only for constants.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration using the largest whole units first, e.g.
// "1w2d12h" or "6s". Sub-day durations fall through to the standard
// time.Duration format.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	negative := d < 0
	if negative {
		d = -d
	}

	weeks := d / Week
	d -= weeks * Week
	days := d / Day
	d -= days * Day

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	if weeks > 0 {
		fmt.Fprintf(&b, "%dw", weeks)
	}
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if d > 0 {
		b.WriteString(d.String())
	}
	if weeks == 0 && days == 0 {
		if negative {
			return "-" + d.String()
		}
		return d.String()
	}
	return b.String()
}
