// Package sequence orders an immutable question pool across teams. The pool
// and computed order are fixed when the sequencer is built; only the
// traversal position mutates afterwards.
package sequence

import (
	"math/rand"

	"go.uber.org/zap"
)

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single pool entry. MediaRef points at an externally managed
// asset; the engine never loads it.
type Question struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"prompt"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId"`
	MediaRef        string   `json:"mediaRef,omitempty"`
}

// DistributionMode selects how the pool is spread across teams.
type DistributionMode string

const (
	// SharedPool draws sequentially from one pool and rotates the active
	// team by sequence position.
	SharedPool DistributionMode = "sharedPool"
	// PerTeam partitions the pool round-robin by team before drawing, so
	// each team answers from its own fixed slice.
	PerTeam DistributionMode = "perTeam"
)

// Config controls sequencing behavior.
type Config struct {
	Mode DistributionMode
	// TruncateForFairness trims the usable sequence to the largest multiple
	// of the team count, so every team answers an equal number of questions.
	TruncateForFairness bool
	// RandomizeOrder shuffles the pool before partitioning/truncation.
	RandomizeOrder bool
	// Seed drives the shuffle; 0 leaves the generator unseeded behavior to
	// a fixed default so tests stay deterministic.
	Seed int64
}

// Assignment pairs a question with the team due to answer it.
type Assignment struct {
	Question *Question
	TeamID   string
}

// Sequencer walks a computed question order. Not safe for concurrent use;
// the engine drives it from the single cooperative goroutine.
type Sequencer struct {
	logger *zap.Logger
	order  []Assignment
	pos    int
}

// New builds a sequencer over pool for the given teams. The pool slice is
// copied; later mutation of the caller's slice has no effect.
func New(pool []Question, teamIDs []string, cfg Config, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}

	questions := make([]Question, len(pool))
	copy(questions, pool)

	if cfg.RandomizeOrder {
		rng := rand.New(rand.NewSource(cfg.Seed))
		// Uniform Fisher-Yates pass.
		for i := len(questions) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			questions[i], questions[j] = questions[j], questions[i]
		}
	}

	usable := len(questions)
	if cfg.TruncateForFairness && len(teamIDs) > 0 {
		usable -= usable % len(teamIDs)
	}
	questions = questions[:usable]

	s := &Sequencer{logger: logger}
	switch cfg.Mode {
	case PerTeam:
		s.order = buildPerTeam(questions, teamIDs)
	default:
		s.order = buildSharedPool(questions, teamIDs)
	}

	logger.Info("question sequence built",
		zap.String("mode", string(cfg.Mode)),
		zap.Int("pool", len(pool)),
		zap.Int("usable", len(s.order)),
		zap.Int("teams", len(teamIDs)),
		zap.Bool("randomized", cfg.RandomizeOrder),
	)
	return s
}

// buildSharedPool keeps the pool order and rotates teams by position.
func buildSharedPool(questions []Question, teamIDs []string) []Assignment {
	order := make([]Assignment, 0, len(questions))
	for i := range questions {
		teamID := ""
		if len(teamIDs) > 0 {
			teamID = teamIDs[i%len(teamIDs)]
		}
		order = append(order, Assignment{Question: &questions[i], TeamID: teamID})
	}
	return order
}

// buildPerTeam deals the pool round-robin into per-team queues, then
// interleaves the queues so turns still alternate but each team only ever
// sees its own partition.
func buildPerTeam(questions []Question, teamIDs []string) []Assignment {
	if len(teamIDs) == 0 {
		return buildSharedPool(questions, nil)
	}

	queues := make([][]*Question, len(teamIDs))
	for i := range questions {
		team := i % len(teamIDs)
		queues[team] = append(queues[team], &questions[i])
	}

	order := make([]Assignment, 0, len(questions))
	for round := 0; ; round++ {
		drew := false
		for team, queue := range queues {
			if round < len(queue) {
				order = append(order, Assignment{Question: queue[round], TeamID: teamIDs[team]})
				drew = true
			}
		}
		if !drew {
			return order
		}
	}
}

// GetNextQuestion returns the next assignment and advances the cursor, or
// nil once the sequence is exhausted.
func (s *Sequencer) GetNextQuestion() *Assignment {
	if s.pos >= len(s.order) {
		return nil
	}
	next := s.order[s.pos]
	s.pos++
	return &next
}

// Peek returns the upcoming assignment without advancing, or nil when done.
func (s *Sequencer) Peek() *Assignment {
	if s.pos >= len(s.order) {
		return nil
	}
	next := s.order[s.pos]
	return &next
}

// IsFinished reports whether every usable question has been drawn.
func (s *Sequencer) IsFinished() bool {
	return s.pos >= len(s.order)
}

// UsableCount reports the sequence length after truncation.
func (s *Sequencer) UsableCount() int {
	return len(s.order)
}

// Position reports how many questions have been drawn.
func (s *Sequencer) Position() int {
	return s.pos
}
