package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/engine/phase"
	"github.com/abmakes/atoz-engine-go/internal/engine/rules"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
	"github.com/abmakes/atoz-engine-go/internal/engine/sequence"
	"github.com/abmakes/atoz-engine-go/internal/questions"
)

func testPool(n int) []sequence.Question {
	pool := make([]sequence.Question, n)
	for i := range pool {
		pool[i] = sequence.Question{
			ID:     fmt.Sprintf("q%d", i),
			Prompt: fmt.Sprintf("question %d", i),
			Options: []sequence.Option{
				{ID: "right", Text: "Right"},
				{ID: "wrong", Text: "Wrong"},
			},
			CorrectOptionID: "right",
		}
	}
	return pool
}

func testConfig(poolSize int) (SessionConfig, Collaborators) {
	cfg := SessionConfig{
		Teams: []scoring.Team{
			{ID: "A", Name: "Alpha", Color: "#e74c3c", StartingLives: 3},
			{ID: "B", Name: "Beta", Color: "#3498db", StartingLives: 3},
		},
		QuestionTimeMs: 5000,
		Sequencing:     sequence.Config{Mode: sequence.SharedPool},
		Rules: []rules.RuleSpec{
			{
				ID:      "correct-answer",
				Trigger: string(events.EventAnswerSubmitted),
				Conditions: []rules.ConditionSpec{
					{Field: "payload.isCorrect", Op: "eq", Value: true},
				},
				Actions: []rules.ActionSpec{
					{Kind: "modifyScore", Params: map[string]any{"points": 10}},
					{Kind: "playSound", Params: map[string]any{"soundId": "correct"}},
				},
			},
			{
				ID:      "wrong-answer",
				Trigger: string(events.EventAnswerSubmitted),
				Conditions: []rules.ConditionSpec{
					{Field: "payload.isCorrect", Op: "eq", Value: false},
				},
				Actions: []rules.ActionSpec{
					{Kind: "adjustLives", Params: map[string]any{"delta": -1}},
				},
			},
		},
	}
	collab := Collaborators{
		Questions: questions.StaticProvider{Pool: testPool(poolSize)},
		Logger:    zap.NewNop(),
	}
	return cfg, collab
}

func TestSharedPoolEndToEnd(t *testing.T) {
	cfg, collab := testConfig(5)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	var activeTeams []string
	var gameOver bool
	bus := s.Managers().Bus
	bus.Subscribe(events.EventQuestionPresented, func(e events.Event) {
		activeTeams = append(activeTeams, e.Payload.String(events.KeyTeamID))
	})
	bus.Subscribe(events.EventGameOver, func(events.Event) { gameOver = true })

	require.NoError(t, s.Start())

	for i := 0; i < 5; i++ {
		require.NotNil(t, s.CurrentQuestion())
		require.NoError(t, s.SubmitAnswer("right"))
		if i < 4 {
			assert.False(t, s.Managers().Sequencer.IsFinished())
		}
	}

	assert.Equal(t, []string{"A", "B", "A", "B", "A"}, activeTeams)
	assert.True(t, s.Managers().Sequencer.IsFinished())
	assert.True(t, gameOver)
	assert.Equal(t, phase.PhaseEnded, s.Managers().Phase.Current())

	// A answered 3 correct, B answered 2.
	assert.Equal(t, 30, s.Managers().Scoring.Score("A"))
	assert.Equal(t, 20, s.Managers().Scoring.Score("B"))
}

func TestAnswerConsequencesDeliveredBeforeNextQuestion(t *testing.T) {
	cfg, collab := testConfig(4)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	var log []events.Type
	record := func(e events.Event) { log = append(log, e.Type) }
	bus := s.Managers().Bus
	bus.Subscribe(events.EventScoreUpdated, record)
	bus.Subscribe(events.EventLivesUpdated, record)
	bus.Subscribe(events.EventQuestionPresented, record)

	require.NoError(t, s.Start())
	log = nil // drop the first presentation

	require.NoError(t, s.SubmitAnswer("right"))
	require.Equal(t, []events.Type{events.EventScoreUpdated, events.EventQuestionPresented}, log)

	// A timeout counts as a wrong answer; its life loss must also land
	// before the follow-up question.
	log = nil
	s.Update(5000)
	require.Equal(t, []events.Type{events.EventLivesUpdated, events.EventQuestionPresented}, log)
}

func TestAnswerRejectedOutsidePlaying(t *testing.T) {
	cfg, collab := testConfig(3)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Error(t, s.SubmitAnswer("right")) // still LOADING

	require.NoError(t, s.Start())
	require.NoError(t, s.Pause())
	assert.Error(t, s.SubmitAnswer("right"))

	require.NoError(t, s.Resume())
	assert.NoError(t, s.SubmitAnswer("right"))
}

func TestPauseFreezesTimers(t *testing.T) {
	cfg, collab := testConfig(3)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	require.NoError(t, s.Start())

	s.Update(2000)
	require.Equal(t, 3000.0, s.Managers().Timers.Remaining("question"))

	require.NoError(t, s.Pause())
	s.Update(60000) // ignored while paused
	require.Equal(t, 3000.0, s.Managers().Timers.Remaining("question"))

	require.NoError(t, s.Resume())
	s.Update(1000)
	assert.Equal(t, 2000.0, s.Managers().Timers.Remaining("question"))
}

func TestQuestionTimeoutCountsAsWrongAnswer(t *testing.T) {
	cfg, collab := testConfig(3)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	var timeouts []string
	s.Managers().Bus.Subscribe(events.EventAnswerSubmitted, func(e events.Event) {
		if e.Payload.String(events.KeyReason) == "timeout" {
			timeouts = append(timeouts, e.Payload.String(events.KeyTeamID))
		}
	})

	require.NoError(t, s.Start())
	s.Update(5000) // burn the whole question clock

	assert.Equal(t, []string{"A"}, timeouts)
	assert.Equal(t, 2, s.Managers().Scoring.Lives("A"))
	// The next question was presented to B.
	require.NotNil(t, s.CurrentQuestion())
	assert.Equal(t, "B", s.CurrentQuestion().TeamID)
}

func TestEliminationEndsSession(t *testing.T) {
	cfg, collab := testConfig(20)
	cfg.Teams = []scoring.Team{
		{ID: "A", Name: "Alpha", StartingLives: 1},
		{ID: "B", Name: "Beta", StartingLives: 3},
	}
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	var overReason string
	s.Managers().Bus.Subscribe(events.EventGameOver, func(e events.Event) {
		overReason = e.Payload.String(events.KeyReason)
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.SubmitAnswer("wrong")) // A loses its only life

	assert.Equal(t, "elimination", overReason)
	assert.Equal(t, phase.PhaseEnded, s.Managers().Phase.Current())
	assert.Nil(t, s.CurrentQuestion())
}

func TestGameOverNamesLeader(t *testing.T) {
	cfg, collab := testConfig(2)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)
	defer s.Destroy()

	var winner string
	s.Managers().Bus.Subscribe(events.EventGameOver, func(e events.Event) {
		winner = e.Payload.String(events.KeyWinnerTeamID)
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.SubmitAnswer("wrong")) // A: 0 points
	require.NoError(t, s.SubmitAnswer("right")) // B: 10 points

	assert.Equal(t, "B", winner)
}

func TestSessionValidation(t *testing.T) {
	cfg, collab := testConfig(3)

	noTeams := cfg
	noTeams.Teams = nil
	_, err := NewSession(noTeams, collab)
	assert.Error(t, err)

	noTime := cfg
	noTime.QuestionTimeMs = 0
	_, err = NewSession(noTime, collab)
	assert.Error(t, err)

	noQuestions := collab
	noQuestions.Questions = nil
	_, err = NewSession(cfg, noQuestions)
	assert.Error(t, err)

	badRules := cfg
	badRules.Rules = []rules.RuleSpec{{Trigger: "X", Actions: []rules.ActionSpec{{Kind: "nope"}}}}
	_, err = NewSession(badRules, collab)
	assert.Error(t, err)
}

func TestDestroyIsIdempotentAndSilencesBus(t *testing.T) {
	cfg, collab := testConfig(3)
	s, err := NewSession(cfg, collab)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	bus := s.Managers().Bus

	s.Destroy()
	s.Destroy()

	// A fresh publish reaches nobody: all session subscriptions are gone.
	assert.Equal(t, 0, bus.SubscriberCount(events.EventTimerCompleted))
	assert.Equal(t, 0, bus.SubscriberCount(events.EventAnswerSubmitted))
}
