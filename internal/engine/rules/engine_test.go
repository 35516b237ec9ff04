package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/engine/powerup"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
	"github.com/abmakes/atoz-engine-go/internal/storage"
)

type recordingPlayer struct {
	played []string
}

func (p *recordingPlayer) Play(soundID string) {
	p.played = append(p.played, soundID)
}

type failingAction struct{}

func (failingAction) Execute(ActionContext) error { return errors.New("boom") }

type panickingAction struct{}

func (panickingAction) Execute(ActionContext) error { panic("unexpected") }

type harness struct {
	bus      *events.Bus
	scoring  *scoring.Manager
	powerUps *powerup.Manager
	player   *recordingPlayer
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bus := events.NewBus(zap.NewNop())
	teams := []scoring.Team{
		{ID: "t1", Name: "Red", StartingLives: 3},
		{ID: "t2", Name: "Blue", StartingLives: 3},
	}
	scoringMgr := scoring.NewManager(bus, storage.NewMemoryStore(), teams, zap.NewNop())
	powerUps := powerup.NewManager(bus, zap.NewNop())
	player := &recordingPlayer{}
	return &harness{
		bus:      bus,
		scoring:  scoringMgr,
		powerUps: powerUps,
		player:   player,
		engine:   NewEngine(bus, scoringMgr, powerUps, player, zap.NewNop()),
	}
}

func TestCorrectAnswerAwardsPoints(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		ID:      "award",
		Trigger: events.EventAnswerSubmitted,
		Conditions: []Condition{
			Compare{Field: "payload.isCorrect", Op: OpEq, Value: true},
		},
		Actions: []Action{ModifyScore{Points: 10}},
	}})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: true,
	})
	assert.Equal(t, 10, h.scoring.Score("t1"))
	assert.Equal(t, 0, h.scoring.Score("t2"))

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: false,
	})
	assert.Equal(t, 10, h.scoring.Score("t1"))
}

func TestEmptyConditionListAlwaysFires(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Actions: []Action{PlaySound{SoundID: "ding"}},
	}})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Equal(t, []string{"ding"}, h.player.played)
}

func TestConditionsShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Conditions: []Condition{
			Compare{Field: "payload.isCorrect", Op: OpEq, Value: false},
			// Would error (gt on strings) if it were ever evaluated.
			Compare{Field: "payload.teamId", Op: OpGt, Value: "zzz"},
		},
		Actions: []Action{PlaySound{SoundID: "never"}},
	}})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: true,
	})
	assert.Empty(t, h.player.played)
}

func TestProgressiveScoreWithMultiplier(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Conditions: []Condition{
			Compare{Field: "payload.isCorrect", Op: OpEq, Value: true},
		},
		Actions: []Action{ModifyScore{Progressive: true, RatePerSecond: 2}},
	}})

	// 3500ms left at 2 pts/s, doubled: round(3.5*2*2) = 14.
	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:          "t1",
		events.KeyIsCorrect:       true,
		events.KeyTimeRemainingMs: 3500.0,
		events.KeyMultiplier:      2.0,
	})
	assert.Equal(t, 14, h.scoring.Score("t1"))
}

func TestFailingActionDoesNotStopSiblings(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Actions: []Action{
			failingAction{},
			panickingAction{},
			PlaySound{SoundID: "still-played"},
		},
	}})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Equal(t, []string{"still-played"}, h.player.played)

	// Future evaluations are unaffected.
	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Equal(t, []string{"still-played", "still-played"}, h.player.played)
}

func TestStateProviderConditions(t *testing.T) {
	h := newHarness(t)
	h.engine.RegisterStateProvider("scoring", func(key string) (any, bool) {
		if key == "scoring.score.t1" {
			return h.scoring.Score("t1"), true
		}
		return nil, false
	})
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Conditions: []Condition{
			Compare{Field: "scoring.score.t1", Op: OpGte, Value: 50},
		},
		Actions: []Action{PlaySound{SoundID: "leader"}},
	}})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Empty(t, h.player.played)

	h.scoring.SetScore("t1", 60)
	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Equal(t, []string{"leader"}, h.player.played)
}

func TestApplyPowerUpAndShieldedLives(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{
		{
			Trigger: events.EventAnswerSubmitted,
			Conditions: []Condition{
				Compare{Field: "payload.isCorrect", Op: OpEq, Value: true},
			},
			Actions: []Action{ApplyPowerUp{EffectType: powerup.EffectShield, DurationMs: 10000}},
		},
		{
			Trigger: events.EventAnswerSubmitted,
			Conditions: []Condition{
				Compare{Field: "payload.isCorrect", Op: OpEq, Value: false},
			},
			Actions: []Action{AdjustLives{Delta: -1}},
		},
	})

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: true,
	})
	require.True(t, h.powerUps.IsActiveForTarget(powerup.EffectShield, "t1"))

	// Shield absorbs the first wrong answer.
	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: false,
	})
	assert.Equal(t, 3, h.scoring.Lives("t1"))
	assert.False(t, h.powerUps.IsActiveForTarget(powerup.EffectShield, "t1"))

	// The second one costs a life.
	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:    "t1",
		events.KeyIsCorrect: false,
	})
	assert.Equal(t, 2, h.scoring.Lives("t1"))
}

func TestDestroyUnsubscribes(t *testing.T) {
	h := newHarness(t)
	h.engine.LoadRules([]Rule{{
		Trigger: events.EventAnswerSubmitted,
		Actions: []Action{PlaySound{SoundID: "ding"}},
	}})

	h.engine.Destroy()
	h.engine.Destroy() // idempotent

	h.bus.Publish(events.EventAnswerSubmitted, events.Payload{events.KeyTeamID: "t1"})
	assert.Empty(t, h.player.played)
	assert.Equal(t, 0, h.engine.RuleCount())
}
