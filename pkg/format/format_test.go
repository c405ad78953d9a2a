package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KB", Bytes(1536))
	assert.Equal(t, "16.0 MB", Bytes(16*1024*1024))
	assert.Equal(t, "1.0 GB", Bytes(1024*1024*1024))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "42", Number(42))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "45.7%", Percent(0.4567))
	assert.Equal(t, "0.0%", Percent(0))
}

func TestUptime(t *testing.T) {
	assert.Equal(t, "3d4h5m", Uptime(3*24*time.Hour+4*time.Hour+5*time.Minute+6*time.Second))
	assert.Equal(t, "4h5m", Uptime(4*time.Hour+5*time.Minute))
	assert.Equal(t, "5m6s", Uptime(5*time.Minute+6*time.Second))
	assert.Equal(t, "42s", Uptime(42*time.Second))
}
