// Package bytesize provides human-readable byte size parsing and
// formatting using binary (1024) units.
//
// Supported units (case-insensitive): B, KB/K/KiB, MB/M/MiB, GB/G/GiB,
// TB/T/TiB. A bare number is taken as bytes.
//
// Examples:
//   - "5MB"   = 5 * 1024 * 1024 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "1024"  = 1024 bytes
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var unitMultipliers = map[string]Size{
	"b": B, "byte": B, "bytes": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
}

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse parses a human-readable size string into a Size.
func Parse(s string) (Size, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	parts := sizePattern.FindStringSubmatch(s)
	if parts == nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	value, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", parts[1], err)
	}

	unit := strings.ToLower(parts[2])
	if unit == "" {
		return Size(value), nil
	}

	mult, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", parts[2])
	}
	return Size(value * float64(mult)), nil
}

// MustParse is like Parse but panics on error. Use only for constants.
func MustParse(s string) Size {
	sz, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sz
}

// Int64 returns the size as an int64 byte count.
func (s Size) Int64() int64 { return int64(s) }

// String renders the size with the largest unit that keeps a value >= 1,
// e.g. "5MB", "1.5GB", "512B".
func (s Size) String() string {
	return Format(s)
}

// Format renders a Size in human-readable form.
func Format(s Size) string {
	if s < 0 {
		return "-" + Format(-s)
	}
	switch {
	case s >= TB:
		return trimZero(float64(s)/float64(TB)) + "TB"
	case s >= GB:
		return trimZero(float64(s)/float64(GB)) + "GB"
	case s >= MB:
		return trimZero(float64(s)/float64(MB)) + "MB"
	case s >= KB:
		return trimZero(float64(s)/float64(KB)) + "KB"
	default:
		return fmt.Sprintf("%dB", int64(s))
	}
}

func trimZero(v float64) string {
	out := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(out, ".0")
}
