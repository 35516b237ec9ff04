// Package timer implements cooperative countdown/countup timers. Time only
// advances through Update, which the host calls once per frame; the package
// never consults the wall clock, so pausing is exact and a paused session
// resumes from precisely the frozen remainder.
package timer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

// Kind selects the direction a timer counts in.
type Kind int

const (
	// Countdown runs from the duration toward zero.
	Countdown Kind = iota
	// Countup runs from zero toward the duration.
	Countup
)

func (k Kind) String() string {
	if k == Countup {
		return "COUNTUP"
	}
	return "COUNTDOWN"
}

type timerState struct {
	id        string
	kind      Kind
	duration  float64 // ms
	elapsed   float64 // ms of running time applied
	running   bool
	completed bool
}

// remaining is the value reported on ticks: ms left for countdowns, ms
// accumulated for countups.
func (t *timerState) remaining() float64 {
	if t.kind == Countup {
		return t.elapsed
	}
	return t.duration - t.elapsed
}

// Manager owns all timers for a session.
type Manager struct {
	mu     sync.Mutex
	logger *zap.Logger
	bus    *events.Bus
	timers map[string]*timerState
	order  []string // creation order, so ticks are emitted deterministically
}

// NewManager creates an empty timer manager.
func NewManager(bus *events.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		bus:    bus,
		timers: make(map[string]*timerState),
	}
}

// CreateTimer creates a timer under id, replacing any existing timer with the
// same id. The new timer starts stopped.
func (m *Manager) CreateTimer(id string, durationMs float64, kind Kind) {
	if durationMs <= 0 {
		m.logger.Warn("rejected timer with non-positive duration",
			zap.String("timer_id", id),
			zap.Float64("duration_ms", durationMs),
		)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.timers[id]; exists {
		m.logger.Debug("replacing timer", zap.String("timer_id", id))
	} else {
		m.order = append(m.order, id)
	}
	m.timers[id] = &timerState{id: id, kind: kind, duration: durationMs}
}

// StartTimer begins ticking the timer. Starting a completed or unknown timer
// is a logged no-op.
func (m *Manager) StartTimer(id string) {
	m.setRunning(id, true)
}

// PauseTimer freezes the timer's remaining time.
func (m *Manager) PauseTimer(id string) {
	m.setRunning(id, false)
}

// ResumeTimer continues a paused timer from exactly the frozen remainder.
func (m *Manager) ResumeTimer(id string) {
	m.setRunning(id, true)
}

func (m *Manager) setRunning(id string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	if !ok {
		m.logger.Warn("unknown timer", zap.String("timer_id", id))
		return
	}
	if t.completed {
		m.logger.Warn("ignoring control of completed timer", zap.String("timer_id", id))
		return
	}
	t.running = running
}

// RemoveTimer destroys the timer. Removing an unknown timer is a no-op.
func (m *Manager) RemoveTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[id]; !ok {
		return
	}
	delete(m.timers, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Remaining returns the timer's current remaining value in ms, or 0 for an
// unknown timer.
func (m *Manager) Remaining(id string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		return t.remaining()
	}
	return 0
}

// IsRunning reports whether the timer exists and is ticking.
func (m *Manager) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	return ok && t.running
}

// IsCompleted reports whether the timer has reached its terminal bound.
func (m *Manager) IsCompleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	return ok && t.completed
}

// Update advances every running timer by deltaMs of running time, emitting
// TIMER_TICK per timer and TIMER_COMPLETED exactly once when a timer reaches
// its bound. The host drives this once per frame; it must not be called
// while the session is paused.
func (m *Manager) Update(deltaMs float64) {
	if deltaMs <= 0 {
		return
	}

	type tick struct {
		id        string
		remaining float64
		duration  float64
		completed bool
	}

	m.mu.Lock()
	var ticks []tick
	for _, id := range m.order {
		t := m.timers[id]
		if !t.running || t.completed {
			continue
		}
		t.elapsed += deltaMs
		if t.elapsed >= t.duration {
			t.elapsed = t.duration
			t.completed = true
			t.running = false
		}
		ticks = append(ticks, tick{
			id:        t.id,
			remaining: t.remaining(),
			duration:  t.duration,
			completed: t.completed,
		})
	}
	m.mu.Unlock()

	for _, tk := range ticks {
		m.bus.Publish(events.EventTimerTick, events.Payload{
			events.KeyTimerID:   tk.id,
			events.KeyRemaining: tk.remaining,
			events.KeyDuration:  tk.duration,
		})
		if tk.completed {
			m.logger.Debug("timer completed", zap.String("timer_id", tk.id))
			m.bus.Publish(events.EventTimerCompleted, events.Payload{
				events.KeyTimerID: tk.id,
			})
		}
	}
}

// Destroy removes every timer. Safe to call more than once.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = make(map[string]*timerState)
	m.order = nil
}
