package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Size
		wantErr  bool
	}{
		{"bare bytes", "1024", 1024, false},
		{"bytes unit", "512B", 512, false},
		{"kilobytes", "500KB", 500 * KB, false},
		{"kib", "500KiB", 500 * KB, false},
		{"megabytes", "5MB", 5 * MB, false},
		{"short m", "5m", 5 * MB, false},
		{"gigabytes spaced", "1.5 GB", Size(1.5 * float64(GB)), false},
		{"terabytes", "2TB", 2 * TB, false},
		{"lowercase", "16mb", 16 * MB, false},
		{"fraction", "0.5KB", 512, false},

		{"empty", "", 0, true},
		{"unknown unit", "5XB", 0, true},
		{"no number", "MB", 0, true},
		{"negative", "-5MB", 0, true},
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
		input    Size
		expected string
	}{
		{"bytes", 512, "512B"},
		{"kilobytes", 500 * KB, "500KB"},
		{"megabytes", 16 * MB, "16MB"},
		{"fractional gb", MB * 1536, "1.5GB"},
		{"zero", 0, "0B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.input))
			assert.Equal(t, tt.expected, tt.input.String())
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus unit") })
	assert.Equal(t, 5*MB, MustParse("5MB"))
}
