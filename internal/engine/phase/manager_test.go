package phase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

func newTestManager() (*Manager, *events.Bus) {
	bus := events.NewBus(zap.NewNop())
	return NewManager(bus, zap.NewNop()), bus
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		path []Phase
		ok   bool
	}{
		{"full lifecycle", []Phase{PhaseReady, PhasePlaying, PhasePaused, PhasePlaying, PhaseEnded}, true},
		{"end from ready", []Phase{PhaseReady, PhaseEnded}, true},
		{"skip ready", []Phase{PhasePlaying}, false},
		{"pause before play", []Phase{PhaseReady, PhasePaused}, false},
		{"back to loading", []Phase{PhaseReady, PhaseLoading}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager()
			var err error
			for _, next := range tt.path {
				err = m.TransitionTo(next)
			}
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], m.Current())
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestEndedIsTerminal(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.TransitionTo(PhaseReady))
	require.NoError(t, m.TransitionTo(PhaseEnded))

	for _, next := range []Phase{PhaseLoading, PhaseReady, PhasePlaying, PhasePaused} {
		assert.ErrorIs(t, m.TransitionTo(next), ErrInvalidTransition)
		assert.Equal(t, PhaseEnded, m.Current())
	}
}

func TestRejectedTransitionEmitsNothing(t *testing.T) {
	m, bus := newTestManager()
	emitted := 0
	bus.Subscribe(events.EventPhaseChanged, func(events.Event) { emitted++ })

	_ = m.TransitionTo(PhasePlaying) // illegal from LOADING
	assert.Equal(t, 0, emitted)

	require.NoError(t, m.TransitionTo(PhaseReady))
	assert.Equal(t, 1, emitted)
}

func TestPhaseChangedPayload(t *testing.T) {
	m, bus := newTestManager()

	var got events.Payload
	bus.Subscribe(events.EventPhaseChanged, func(e events.Event) { got = e.Payload })

	require.NoError(t, m.TransitionTo(PhaseReady))
	require.Equal(t, "LOADING", got.String(events.KeyPrevious))
	require.Equal(t, "READY", got.String(events.KeyCurrent))
}

func TestSetActiveTeam(t *testing.T) {
	m, bus := newTestManager()

	var changes []string
	bus.Subscribe(events.EventActiveTeamChanged, func(e events.Event) {
		changes = append(changes, e.Payload.String(events.KeyTeamID))
	})

	// Not PLAYING yet: logged no-op.
	assert.ErrorIs(t, m.SetActiveTeam("t1"), ErrWrongPhase)
	assert.Empty(t, m.ActiveTeam())

	require.NoError(t, m.TransitionTo(PhaseReady))
	require.NoError(t, m.TransitionTo(PhasePlaying))

	require.NoError(t, m.SetActiveTeam("t1"))
	require.NoError(t, m.SetActiveTeam("t1")) // unchanged, no duplicate event
	require.NoError(t, m.SetActiveTeam("t2"))

	assert.Equal(t, []string{"t1", "t2"}, changes)
	assert.Equal(t, "t2", m.ActiveTeam())
}

func TestConcurrentReadsDuringTransitions(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.TransitionTo(PhaseReady))
	require.NoError(t, m.TransitionTo(PhasePlaying))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = m.Current()
					_ = m.ActiveTeam()
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		require.NoError(t, m.SetActiveTeam("t1"))
		require.NoError(t, m.SetActiveTeam("t2"))
	}
	require.NoError(t, m.TransitionTo(PhasePaused))
	require.NoError(t, m.TransitionTo(PhasePlaying))
	close(done)
	wg.Wait()

	assert.Equal(t, PhasePlaying, m.Current())
}
