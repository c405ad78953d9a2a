package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SinkFactory builds the display sink for a new session.
type SinkFactory func() (DisplaySink, error)

// ManagerOptions configures the session manager.
type ManagerOptions struct {
	Config       Config
	Capabilities Capabilities
	Factory      TransportFactory
	Sinks        SinkFactory
	Logger       *slog.Logger
	Notify       Notifier

	// IdleTimeout closes sessions with no state change for this long.
	// Zero disables the sweep.
	IdleTimeout time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Manager owns the set of live sessions. One session per device: creating
// a second session for a device fails until the first is closed.
type Manager struct {
	cfg         Config
	caps        Capabilities
	factory     TransportFactory
	sinks       SinkFactory
	log         *slog.Logger
	notify      Notifier
	idleTimeout time.Duration
	clock       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Controller
	byDevice map[string]string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds a manager and starts its idle sweep when an idle
// timeout is configured.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	m := &Manager{
		cfg:         opts.Config,
		caps:        opts.Capabilities,
		factory:     opts.Factory,
		sinks:       opts.Sinks,
		log:         logger,
		notify:      opts.Notify,
		idleTimeout: opts.IdleTimeout,
		clock:       clock,
		sessions:    make(map[string]*Controller),
		byDevice:    make(map[string]string),
		stopCh:      make(chan struct{}),
	}
	if m.idleTimeout > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

// Create builds a new session for a device. The session starts idle;
// callers follow up with Start.
func (m *Manager) Create(deviceID string) (*Controller, error) {
	sink, err := m.sinks()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existingID, ok := m.byDevice[deviceID]; ok {
		if existing, ok := m.sessions[existingID]; ok && !existing.Closed() {
			m.mu.Unlock()
			_ = sink.Close()
			return nil, ErrDeviceBusy
		}
		delete(m.byDevice, deviceID)
		delete(m.sessions, existingID)
	}

	id := uuid.NewString()
	ctrl := NewController(ControllerOptions{
		ID:           id,
		DeviceID:     deviceID,
		Config:       m.cfg,
		Capabilities: m.caps,
		Factory:      m.factory,
		Sink:         sink,
		Logger:       m.log,
		Notify:       m.notify,
		Clock:        m.clock,
	})
	m.sessions[id] = ctrl
	m.byDevice[deviceID] = id
	m.mu.Unlock()

	m.log.Info("session created", "session_id", id, "device_id", deviceID)
	return ctrl, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	ctrl, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// GetByDevice returns the live session for a device.
func (m *Manager) GetByDevice(deviceID string) (*Controller, error) {
	m.mu.RLock()
	id, ok := m.byDevice[deviceID]
	var ctrl *Controller
	if ok {
		ctrl = m.sessions[id]
	}
	m.mu.RUnlock()
	if ctrl == nil {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// List returns snapshots of every session, live and recently closed.
func (m *Manager) List() []Snapshot {
	ctrls := m.controllers()
	snaps := make([]Snapshot, 0, len(ctrls))
	for _, c := range ctrls {
		snaps = append(snaps, c.Snapshot())
	}
	return snaps
}

// Close ends a session and removes it from the registry.
func (m *Manager) Close(id string) error {
	m.mu.RLock()
	ctrl, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if err := ctrl.Close(); err != nil {
		return err
	}
	m.remove(ctrl)
	return nil
}

// CloseAll ends every session. Used at shutdown.
func (m *Manager) CloseAll() {
	for _, ctrl := range m.controllers() {
		_ = ctrl.Close()
		m.remove(ctrl)
	}
}

// Stop halts the idle sweep and closes every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.CloseAll()
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ManagerStats summarizes the registry for health reporting.
type ManagerStats struct {
	Sessions    int            `json:"sessions"`
	ByLifecycle map[string]int `json:"by_lifecycle"`
	ByTransport map[string]int `json:"by_transport"`
}

// Stats returns aggregate session counts.
func (m *Manager) Stats() ManagerStats {
	stats := ManagerStats{
		ByLifecycle: make(map[string]int),
		ByTransport: make(map[string]int),
	}
	for _, snap := range m.List() {
		stats.Sessions++
		stats.ByLifecycle[snap.Lifecycle.String()]++
		stats.ByTransport[snap.Transport.String()]++
	}
	return stats
}

// controllers copies the registry so callers can touch sessions without
// holding the manager lock.
func (m *Manager) controllers() []*Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		out = append(out, c)
	}
	return out
}

func (m *Manager) remove(ctrl *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[ctrl.ID()] == ctrl {
		delete(m.sessions, ctrl.ID())
	}
	if m.byDevice[ctrl.DeviceID()] == ctrl.ID() {
		delete(m.byDevice, ctrl.DeviceID())
	}
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes closed sessions and closes sessions idle past the timeout.
func (m *Manager) sweep() {
	now := m.clock()
	for _, ctrl := range m.controllers() {
		if ctrl.Closed() {
			m.remove(ctrl)
			continue
		}
		last := ctrl.LastActivity()
		if !last.IsZero() && now.Sub(last) > m.idleTimeout {
			m.log.Info("closing idle session",
				"session_id", ctrl.ID(),
				"device_id", ctrl.DeviceID(),
				"idle", now.Sub(last).Round(time.Second).String())
			_ = ctrl.Close()
			m.remove(ctrl)
		}
	}
}
