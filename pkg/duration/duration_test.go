package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Standard Go format passes through
		{"hours", "720h", 720 * time.Hour, false},
		{"seconds", "6s", 6 * time.Second, false},
		{"milliseconds", "800ms", 800 * time.Millisecond, false},
		{"combined standard", "1h30m", 90 * time.Minute, false},

		// Days
		{"days short", "30d", 30 * Day, false},
		{"days word", "30 days", 30 * Day, false},
		{"days no space", "30days", 30 * Day, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},

		// Weeks
		{"weeks short", "2w", 2 * Week, false},
		{"weeks word", "2 weeks", 2 * Week, false},
		{"wk abbrev", "2wk", 2 * Week, false},
		{"mixed", "1w2d12h", Week + 2*Day + 12*time.Hour, false},

		// Full-word standard units
		{"hours word", "3 hours", 3 * time.Hour, false},
		{"minutes word", "30 minutes", 30 * time.Minute, false},
		{"seconds word", "45 secs", 45 * time.Second, false},

		// Negative
		{"negative days", "-2d", -2 * Day, false},
		{"negative standard", "-1h", -time.Hour, false},

		// Errors
		{"empty", "", 0, true},
		{"garbage", "not a duration", 0, true},
		{"bare number", "42", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"seconds", 6 * time.Second, "6s"},
		{"sub-day", 90 * time.Minute, "1h30m0s"},
		{"days", 3 * Day, "3d"},
		{"weeks", 2 * Week, "2w"},
		{"mixed", Week + 2*Day + 12*time.Hour, "1w2d12h0m0s"},
		{"negative days", -2 * Day, "-2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, 6 * time.Second, Day, Week + Day, 30 * Day} {
		got, err := Parse(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
	assert.Equal(t, 6*time.Second, MustParse("6s"))
}
