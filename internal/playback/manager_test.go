package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	m := NewManager(ManagerOptions{
		Config:       fastConfig(),
		Capabilities: testCaps(),
		Factory:      factory,
		Sinks:        func() (DisplaySink, error) { return &fakeSink{}, nil },
	})
	t.Cleanup(m.Stop)
	return m, factory
}

func TestManagerOneSessionPerDevice(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Create("device-1")
	require.NoError(t, err)

	_, err = m.Create("device-1")
	assert.ErrorIs(t, err, ErrDeviceBusy)

	// A different device is fine.
	_, err = m.Create("device-2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	// Closing frees the device slot.
	require.NoError(t, m.Close(first.ID()))
	second, err := m.Create("device-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestManagerLookup(t *testing.T) {
	m, _ := newTestManager(t)

	ctrl, err := m.Create("device-1")
	require.NoError(t, err)

	got, err := m.Get(ctrl.ID())
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	got, err = m.GetByDevice("device-1")
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	_, err = m.Get("no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.GetByDevice("no-such-device")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, m.Close(ctrl.ID()))
	_, err = m.Get(ctrl.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerStats(t *testing.T) {
	m, factory := newTestManager(t)

	ctrl, err := m.Create("device-1")
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(testTarget))
	factory.last().ready()

	_, err = m.Create("device-2")
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 1, stats.ByLifecycle[LifecycleReady.String()])
	assert.Equal(t, 1, stats.ByLifecycle[LifecycleIdle.String()])
}

func TestManagerCloseAll(t *testing.T) {
	m, _ := newTestManager(t)

	a, err := m.Create("device-1")
	require.NoError(t, err)
	b, err := m.Create("device-2")
	require.NoError(t, err)

	m.CloseAll()
	assert.Zero(t, m.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}
