// Package phase owns the session phase state machine and the active-turn
// pointer. Transitions follow a fixed table; anything outside it is rejected
// and logged without disturbing the current phase.
package phase

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

// Phase represents a discrete stage of a game session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhasePlaying
	PhasePaused
	PhaseEnded
)

var phaseNames = map[Phase]string{
	PhaseLoading: "LOADING",
	PhaseReady:   "READY",
	PhasePlaying: "PLAYING",
	PhasePaused:  "PAUSED",
	PhaseEnded:   "ENDED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ErrInvalidTransition is returned when a requested phase transition is not
// in the transition table. The phase is left unchanged.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ErrWrongPhase is returned when an operation requires a phase the session
// is not in.
var ErrWrongPhase = errors.New("operation not allowed in current phase")

// transitions is the full set of legal phase moves. ENDED is terminal.
var transitions = map[Phase][]Phase{
	PhaseLoading: {PhaseReady},
	PhaseReady:   {PhasePlaying, PhaseEnded},
	PhasePlaying: {PhasePaused, PhaseEnded},
	PhasePaused:  {PhasePlaying, PhaseEnded},
	PhaseEnded:   {},
}

// Manager tracks the current phase and the active team.
type Manager struct {
	mu         sync.Mutex
	logger     *zap.Logger
	bus        *events.Bus
	current    Phase
	activeTeam string
}

// NewManager creates a phase manager starting in LOADING.
func NewManager(bus *events.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger,
		bus:     bus,
		current: PhaseLoading,
	}
}

// Current returns the active phase.
func (m *Manager) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ActiveTeam returns the team holding the current turn, or "" before the
// first turn is assigned.
func (m *Manager) ActiveTeam() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTeam
}

// TransitionTo moves the session into the requested phase if the transition
// table allows it, emitting PHASE_CHANGED. Illegal requests return
// ErrInvalidTransition and leave the phase untouched; callers that do not
// care may ignore the error since the rejection is already logged.
func (m *Manager) TransitionTo(next Phase) error {
	m.mu.Lock()
	if next == m.current {
		m.mu.Unlock()
		return nil
	}
	if !m.canTransition(next) {
		current := m.current
		m.mu.Unlock()
		m.logger.Warn("rejected phase transition",
			zap.Stringer("from", current),
			zap.Stringer("to", next),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	previous := m.current
	m.current = next
	m.mu.Unlock()

	m.logger.Info("phase changed",
		zap.Stringer("from", previous),
		zap.Stringer("to", next),
	)
	m.bus.Publish(events.EventPhaseChanged, events.Payload{
		events.KeyPrevious: previous.String(),
		events.KeyCurrent:  next.String(),
	})
	return nil
}

func (m *Manager) canTransition(next Phase) bool {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SetActiveTeam updates the active-turn pointer. Valid only while PLAYING;
// in any other phase the call is a logged no-op.
func (m *Manager) SetActiveTeam(teamID string) error {
	m.mu.Lock()
	if m.current != PhasePlaying {
		current := m.current
		m.mu.Unlock()
		m.logger.Warn("ignoring active team change outside PLAYING",
			zap.Stringer("phase", current),
			zap.String("team_id", teamID),
		)
		return fmt.Errorf("%w: %s", ErrWrongPhase, current)
	}
	if teamID == m.activeTeam {
		m.mu.Unlock()
		return nil
	}
	m.activeTeam = teamID
	m.mu.Unlock()

	m.bus.Publish(events.EventActiveTeamChanged, events.Payload{
		events.KeyTeamID: teamID,
	})
	return nil
}

// Destroy resets the manager. Idempotent; the manager keeps no bus
// subscriptions of its own.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTeam = ""
}
