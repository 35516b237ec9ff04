// Package questions loads and validates the immutable question pool the
// sequencer consumes. Media referenced by questions is fetched and cached by
// the host, never here.
package questions

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/abmakes/atoz-engine-go/internal/engine/sequence"
)

// Provider supplies the question pool for one session.
type Provider interface {
	Questions() ([]sequence.Question, error)
}

// FileProvider reads a JSON array of questions from disk.
type FileProvider struct {
	Path string
}

// Questions implements Provider.
func (p FileProvider) Questions() ([]sequence.Question, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read question pool: %w", err)
	}
	var pool []sequence.Question
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("decode question pool %s: %w", p.Path, err)
	}
	if err := Validate(pool); err != nil {
		return nil, fmt.Errorf("question pool %s: %w", p.Path, err)
	}
	return pool, nil
}

// StaticProvider serves an in-memory pool, mainly for tests and demos.
type StaticProvider struct {
	Pool []sequence.Question
}

// Questions implements Provider.
func (p StaticProvider) Questions() ([]sequence.Question, error) {
	if err := Validate(p.Pool); err != nil {
		return nil, err
	}
	return p.Pool, nil
}

// Validate checks structural integrity of a pool: unique question IDs, at
// least two options each, and a correct-option ID that exists.
func Validate(pool []sequence.Question) error {
	if len(pool) == 0 {
		return fmt.Errorf("empty question pool")
	}
	seen := make(map[string]bool, len(pool))
	for i, q := range pool {
		if q.ID == "" {
			return fmt.Errorf("question %d: missing id", i)
		}
		if seen[q.ID] {
			return fmt.Errorf("question %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = true
		if q.Prompt == "" {
			return fmt.Errorf("question %q: missing prompt", q.ID)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %q: needs at least two options", q.ID)
		}
		correctFound := false
		optionIDs := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if opt.ID == "" {
				return fmt.Errorf("question %q: option with missing id", q.ID)
			}
			if optionIDs[opt.ID] {
				return fmt.Errorf("question %q: duplicate option id %q", q.ID, opt.ID)
			}
			optionIDs[opt.ID] = true
			if opt.ID == q.CorrectOptionID {
				correctFound = true
			}
		}
		if !correctFound {
			return fmt.Errorf("question %q: correct option %q not among options", q.ID, q.CorrectOptionID)
		}
	}
	return nil
}
