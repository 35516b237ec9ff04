// Package engine assembles the managers into one playable session and exposes
// the host-facing surface: Start, SubmitAnswer, Pause/Resume, the per-frame
// Update, and Destroy. All wiring is explicit; components receive the
// ManagerSet they need instead of reaching into globals.
package engine

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/audio"
	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/engine/phase"
	"github.com/abmakes/atoz-engine-go/internal/engine/powerup"
	"github.com/abmakes/atoz-engine-go/internal/engine/rules"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
	"github.com/abmakes/atoz-engine-go/internal/engine/sequence"
	"github.com/abmakes/atoz-engine-go/internal/engine/timer"
	"github.com/abmakes/atoz-engine-go/internal/questions"
	"github.com/abmakes/atoz-engine-go/internal/storage"
)

// questionTimerID is the well-known timer every question runs under.
const questionTimerID = "question"

// SessionConfig describes one game session.
type SessionConfig struct {
	Teams          []scoring.Team
	QuestionTimeMs float64
	// RequireAllEliminated delays game over until every team is out instead
	// of the first elimination.
	RequireAllEliminated bool
	Sequencing           sequence.Config
	Rules                []rules.RuleSpec
}

// Collaborators are the externally implemented services a session consumes.
// Zero values fall back to in-memory/no-op implementations.
type Collaborators struct {
	Store     storage.KV
	Audio     audio.Player
	Questions questions.Provider
	Logger    *zap.Logger
}

// ManagerSet bundles every manager of a session. It is handed out as one
// immutable value; hosts use it for read access and event subscription.
type ManagerSet struct {
	Bus       *events.Bus
	Phase     *phase.Manager
	Scoring   *scoring.Manager
	Timers    *timer.Manager
	PowerUps  *powerup.Manager
	Rules     *rules.Engine
	Sequencer *sequence.Sequencer
}

// Session orchestrates one trivia competition from LOADING to ENDED. The
// exported methods are safe for concurrent use, so a network host may submit
// answers from connection goroutines while its tick loop drives Update. Bus
// handlers run under the same lock and must stay within the session.
type Session struct {
	mu        sync.Mutex
	logger    *zap.Logger
	cfg       SessionConfig
	managers  ManagerSet
	current   *sequence.Assignment
	unsubs    []func()
	destroyed bool
}

// NewSession wires a complete session. The question pool and rules are
// loaded here; a failure is returned to the host directly, since nothing can
// be subscribed to a bus that never escaped the constructor. Once running,
// backend failures surface as ENGINE_ERROR events.
func NewSession(cfg SessionConfig, collab Collaborators) (*Session, error) {
	logger := collab.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := collab.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	player := collab.Audio
	if player == nil {
		player = audio.NewLogPlayer(logger)
	}

	if len(cfg.Teams) == 0 {
		return nil, fmt.Errorf("session needs at least one team")
	}
	if cfg.QuestionTimeMs <= 0 {
		return nil, fmt.Errorf("session needs a positive question time")
	}
	if collab.Questions == nil {
		return nil, fmt.Errorf("session needs a question provider")
	}
	pool, err := collab.Questions.Questions()
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	builtRules, err := rules.Build(cfg.Rules, rules.DefaultActionRegistry())
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	bus := events.NewBus(logger)

	scoringMgr := scoring.NewManager(bus, store, cfg.Teams, logger)
	powerUps := powerup.NewManager(bus, logger)
	ruleEngine := rules.NewEngine(bus, scoringMgr, powerUps, player, logger)
	ruleEngine.LoadRules(builtRules)

	teamIDs := make([]string, len(cfg.Teams))
	for i, team := range cfg.Teams {
		teamIDs[i] = team.ID
	}

	s := &Session{
		logger: logger,
		cfg:    cfg,
		managers: ManagerSet{
			Bus:       bus,
			Phase:     phase.NewManager(bus, logger),
			Scoring:   scoringMgr,
			Timers:    timer.NewManager(bus, logger),
			PowerUps:  powerUps,
			Rules:     ruleEngine,
			Sequencer: sequence.New(pool, teamIDs, cfg.Sequencing, logger),
		},
	}
	s.registerStateProviders()
	// Order matters: the rule engine subscribed to ANSWER_SUBMITTED first
	// (in LoadRules above), so its actions have run before onAnswerSubmitted
	// advances to the next question.
	s.unsubs = append(s.unsubs,
		bus.Subscribe(events.EventTimerCompleted, s.onTimerCompleted),
		bus.Subscribe(events.EventAnswerSubmitted, s.onAnswerSubmitted),
		bus.Subscribe(events.EventTeamEliminated, s.onTeamEliminated),
	)
	return s, nil
}

// Managers returns the session's manager set.
func (s *Session) Managers() ManagerSet {
	return s.managers
}

// registerStateProviders exposes manager state to rule conditions under
// dotted keys: scoring.score.<team>, scoring.lives.<team>,
// timer.remaining.<id>, powerup.active.<type>.<target>, phase.current.
func (s *Session) registerStateProviders() {
	m := s.managers
	m.Rules.RegisterStateProvider("scoring", func(key string) (any, bool) {
		if teamID, ok := strings.CutPrefix(key, "scoring.score."); ok {
			return m.Scoring.Score(teamID), true
		}
		if teamID, ok := strings.CutPrefix(key, "scoring.lives."); ok {
			return m.Scoring.Lives(teamID), true
		}
		return nil, false
	})
	m.Rules.RegisterStateProvider("timer", func(key string) (any, bool) {
		if id, ok := strings.CutPrefix(key, "timer.remaining."); ok {
			return m.Timers.Remaining(id), true
		}
		return nil, false
	})
	m.Rules.RegisterStateProvider("powerup", func(key string) (any, bool) {
		rest, ok := strings.CutPrefix(key, "powerup.active.")
		if !ok {
			return nil, false
		}
		effectType, targetID, _ := strings.Cut(rest, ".")
		return m.PowerUps.IsActiveForTarget(effectType, targetID), true
	})
	m.Rules.RegisterStateProvider("phase", func(key string) (any, bool) {
		switch key {
		case "phase.current":
			return m.Phase.Current().String(), true
		case "phase.activeTeam":
			return m.Phase.ActiveTeam(), true
		}
		return nil, false
	})
}

// Start moves the session through READY into PLAYING and presents the first
// question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.managers.Phase.TransitionTo(phase.PhaseReady); err != nil {
		return err
	}
	if err := s.managers.Phase.TransitionTo(phase.PhasePlaying); err != nil {
		return err
	}
	s.presentNext()
	return nil
}

// Pause freezes the session. Timers stop receiving ticks until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.managers.Phase.TransitionTo(phase.PhasePaused)
}

// Resume continues a paused session from exactly where it stopped.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.managers.Phase.TransitionTo(phase.PhasePlaying)
}

// Update advances time-based state by deltaMs. The host calls this once per
// frame; while the session is not PLAYING the call is a no-op, which is what
// makes pausing exact.
func (s *Session) Update(deltaMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.managers.Phase.Current() != phase.PhasePlaying {
		return
	}
	if s.current != nil && s.managers.PowerUps.IsActiveForTarget(powerup.EffectTimeFreeze, s.current.TeamID) {
		// A frozen clock still burns power-up time, otherwise the freeze
		// would never end.
		s.managers.PowerUps.Update(deltaMs)
		return
	}
	s.managers.Timers.Update(deltaMs)
	s.managers.PowerUps.Update(deltaMs)
}

// CurrentQuestion returns the question awaiting an answer, or nil between
// questions and after the session ends.
func (s *Session) CurrentQuestion() *sequence.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SubmitAnswer resolves the pending question with the active team's chosen
// option. The outcome is announced as ANSWER_SUBMITTED (scoring itself is
// the rule engine's business) and the session advances to the next question
// or to game over.
func (s *Session) SubmitAnswer(optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.managers.Phase.Current() != phase.PhasePlaying {
		return fmt.Errorf("cannot answer in phase %s", s.managers.Phase.Current())
	}
	if s.current == nil {
		return fmt.Errorf("no question pending")
	}

	assignment := s.current
	s.consumeCurrent()
	s.managers.Timers.PauseTimer(questionTimerID)

	s.publishAnswer(assignment, optionID, assignment.Question.CorrectOptionID == optionID, "answered")
	return nil
}

// consumeCurrent advances the sequencer past the question being resolved.
// Presentation only peeks, so exhaustion is not observable until the final
// answer has actually been processed.
func (s *Session) consumeCurrent() {
	s.current = nil
	s.managers.Sequencer.GetNextQuestion()
}

// onTimerCompleted treats an expired question timer as a wrong answer.
func (s *Session) onTimerCompleted(e events.Event) {
	if e.Payload.String(events.KeyTimerID) != questionTimerID || s.current == nil {
		return
	}
	assignment := s.current
	s.consumeCurrent()
	s.logger.Info("question timed out",
		zap.String("question_id", assignment.Question.ID),
		zap.String("team_id", assignment.TeamID),
	)
	s.publishAnswer(assignment, "", false, "timeout")
}

// onAnswerSubmitted moves the session forward once an answer's consequences
// have been applied. Advancing from the ANSWER_SUBMITTED dispatch, after the
// rule engine's handler, keeps the event log honest: score and lives updates
// are delivered before the next QUESTION_PRESENTED.
func (s *Session) onAnswerSubmitted(events.Event) {
	s.advance()
}

// onTeamEliminated ends the session when an elimination happens outside the
// answer flow, e.g. a rule firing on a timer tick. Eliminations during an
// answer are already caught by advance.
func (s *Session) onTeamEliminated(events.Event) {
	if s.managers.Scoring.IsGameOver(s.cfg.RequireAllEliminated) {
		s.finish("elimination")
	}
}

func (s *Session) publishAnswer(assignment *sequence.Assignment, optionID string, isCorrect bool, reason string) {
	s.managers.Bus.Publish(events.EventAnswerSubmitted, events.Payload{
		events.KeyTeamID:          assignment.TeamID,
		events.KeyQuestionID:      assignment.Question.ID,
		events.KeyOptionID:        optionID,
		events.KeyIsCorrect:       isCorrect,
		events.KeyTimeRemainingMs: s.managers.Timers.Remaining(questionTimerID),
		events.KeyMultiplier:      s.multiplierFor(assignment.TeamID),
		events.KeyReason:          reason,
	})
}

// multiplierFor reports the score multiplier a team's power-ups grant.
func (s *Session) multiplierFor(teamID string) float64 {
	if s.managers.PowerUps.IsActiveForTarget(powerup.EffectDoublePoints, teamID) {
		return 2
	}
	return 1
}

// advance presents the next question whose team is still in the game, or
// finishes the session when the pool is exhausted or elimination ends it.
func (s *Session) advance() {
	if s.managers.Scoring.IsGameOver(s.cfg.RequireAllEliminated) {
		s.finish("elimination")
		return
	}
	s.presentNext()
}

func (s *Session) presentNext() {
	for {
		next := s.managers.Sequencer.Peek()
		if next == nil {
			s.finish("exhausted")
			return
		}
		if s.managers.Scoring.IsEliminated(next.TeamID) {
			s.logger.Debug("skipping question for eliminated team",
				zap.String("team_id", next.TeamID),
				zap.String("question_id", next.Question.ID),
			)
			s.managers.Sequencer.GetNextQuestion()
			continue
		}

		s.current = next
		if next.TeamID != "" {
			_ = s.managers.Phase.SetActiveTeam(next.TeamID)
		}
		s.managers.Timers.CreateTimer(questionTimerID, s.cfg.QuestionTimeMs, timer.Countdown)
		s.managers.Timers.StartTimer(questionTimerID)
		s.managers.Bus.Publish(events.EventQuestionPresented, events.Payload{
			events.KeyQuestionID: next.Question.ID,
			events.KeyTeamID:     next.TeamID,
			events.KeyDuration:   s.cfg.QuestionTimeMs,
		})
		return
	}
}

func (s *Session) finish(reason string) {
	if s.managers.Phase.Current() == phase.PhaseEnded {
		return
	}
	s.managers.Timers.RemoveTimer(questionTimerID)
	s.current = nil
	s.managers.Bus.Publish(events.EventGameOver, events.Payload{
		events.KeyWinnerTeamID: s.managers.Scoring.Leader(),
		events.KeyReason:       reason,
	})
	_ = s.managers.Phase.TransitionTo(phase.PhaseEnded)
	s.logger.Info("session finished", zap.String("reason", reason))
}

// End terminates the session early.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.managers.Phase.Current() == phase.PhaseEnded {
		return nil
	}
	s.finish("aborted")
	return nil
}

// Destroy tears the session down: every manager is destroyed and every bus
// subscription released, so a successor session never receives stale events.
// Safe to call more than once.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true

	for _, unsubscribe := range s.unsubs {
		unsubscribe()
	}
	s.unsubs = nil
	s.current = nil

	s.managers.Rules.Destroy()
	s.managers.Timers.Destroy()
	s.managers.PowerUps.Destroy()
	s.managers.Scoring.Destroy()
	s.managers.Phase.Destroy()
	s.managers.Bus.Clear()
}
