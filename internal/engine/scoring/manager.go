// Package scoring keeps the per-team score and lives ledger. All mutations go
// through the Manager, which clamps values, emits bookkeeping events, and
// mirrors the ledger into an injected key/value store so a session can resume
// after a process restart.
package scoring

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/storage"
)

const keyPrefix = "scoring:"

// Team describes a competing team at session setup. Teams are immutable once
// registered; only their ledger entries change.
type Team struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	StartingScore int    `json:"startingScore"`
	StartingLives int    `json:"startingLives"`
	MaxLives      int    `json:"maxLives"`
}

// record is a team's mutable ledger entry. eliminated is derived from
// lives == 0 and cached so the elimination event fires once per transition.
type record struct {
	Score      int  `json:"score"`
	Lives      int  `json:"lives"`
	MaxLives   int  `json:"maxLives"`
	Eliminated bool `json:"eliminated"`
}

// Manager owns the score/lives ledger for one session.
type Manager struct {
	mu      sync.Mutex
	logger  *zap.Logger
	bus     *events.Bus
	store   storage.KV
	records map[string]*record
	order   []string
}

// NewManager creates a ledger for the given teams. If the store already holds
// a ledger entry for a team (a resumed session), the persisted entry wins
// over the team's starting values.
func NewManager(bus *events.Bus, store storage.KV, teams []Team, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:  logger,
		bus:     bus,
		store:   store,
		records: make(map[string]*record),
	}
	for _, team := range teams {
		maxLives := team.MaxLives
		if maxLives <= 0 {
			maxLives = team.StartingLives
		}
		rec := &record{
			Score:    max(team.StartingScore, 0),
			Lives:    clamp(team.StartingLives, 0, maxLives),
			MaxLives: maxLives,
		}
		if persisted, ok := m.load(team.ID); ok {
			rec = persisted
			m.logger.Info("restored team ledger",
				zap.String("team_id", team.ID),
				zap.Int("score", rec.Score),
				zap.Int("lives", rec.Lives),
			)
		}
		rec.Eliminated = rec.Lives == 0
		m.records[team.ID] = rec
		m.order = append(m.order, team.ID)
		m.reportStoreError(team.ID, m.persist(team.ID, rec))
	}
	return m
}

// Score returns the current score for a team, or 0 for an unknown team.
func (m *Manager) Score(teamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[teamID]; ok {
		return rec.Score
	}
	return 0
}

// Lives returns the current lives for a team, or 0 for an unknown team.
func (m *Manager) Lives(teamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[teamID]; ok {
		return rec.Lives
	}
	return 0
}

// AddScore increases a team's score by amount. The amount must be positive;
// invalid calls are logged and return the unchanged current score.
func (m *Manager) AddScore(teamID string, amount int) int {
	if amount <= 0 {
		m.logger.Warn("rejected score addition",
			zap.String("team_id", teamID),
			zap.Int("amount", amount),
		)
		return m.Score(teamID)
	}
	return m.applyScore(teamID, amount)
}

// SubtractScore decreases a team's score by amount, flooring at 0. The amount
// must be positive; invalid calls return the unchanged current score.
func (m *Manager) SubtractScore(teamID string, amount int) int {
	if amount <= 0 {
		m.logger.Warn("rejected score subtraction",
			zap.String("team_id", teamID),
			zap.Int("amount", amount),
		)
		return m.Score(teamID)
	}
	return m.applyScore(teamID, -amount)
}

// SetScore replaces a team's score. Negative targets are rejected and return
// the unchanged current score.
func (m *Manager) SetScore(teamID string, score int) int {
	if score < 0 {
		m.logger.Warn("rejected negative score",
			zap.String("team_id", teamID),
			zap.Int("score", score),
		)
		return m.Score(teamID)
	}
	return m.commitScore(teamID, func(current int) int { return score })
}

func (m *Manager) applyScore(teamID string, delta int) int {
	return m.commitScore(teamID, func(current int) int { return max(current+delta, 0) })
}

// commitScore applies a score mutation under the lock, then emits
// SCORE_UPDATED outside it so handlers may call back into the manager.
func (m *Manager) commitScore(teamID string, mutate func(current int) int) int {
	m.mu.Lock()
	rec, ok := m.records[teamID]
	if !ok {
		m.mu.Unlock()
		return m.unknownTeam(teamID)
	}
	previous := rec.Score
	score := mutate(previous)
	rec.Score = score
	persistErr := m.persist(teamID, rec)
	m.mu.Unlock()

	m.reportStoreError(teamID, persistErr)
	if score != previous {
		m.bus.Publish(events.EventScoreUpdated, events.Payload{
			events.KeyTeamID:        teamID,
			events.KeyPreviousScore: previous,
			events.KeyCurrentScore:  score,
			events.KeyDelta:         score - previous,
		})
	}
	return score
}

// SetLives replaces a team's lives, clamped into [0, maxLives]. A transition
// into 0 emits TEAM_ELIMINATED exactly once; a transition away from 0 clears
// the elimination flag silently.
func (m *Manager) SetLives(teamID string, lives int) int {
	m.mu.Lock()
	rec, ok := m.records[teamID]
	if !ok {
		m.mu.Unlock()
		return m.unknownTeam(teamID)
	}

	previous := rec.Lives
	rec.Lives = clamp(lives, 0, rec.MaxLives)
	eliminated := rec.Lives == 0 && !rec.Eliminated
	rec.Eliminated = rec.Lives == 0
	current := rec.Lives
	persistErr := m.persist(teamID, rec)
	m.mu.Unlock()

	m.reportStoreError(teamID, persistErr)
	if current != previous {
		m.bus.Publish(events.EventLivesUpdated, events.Payload{
			events.KeyTeamID:   teamID,
			events.KeyPrevious: previous,
			events.KeyLives:    current,
		})
	}
	if eliminated {
		m.logger.Info("team eliminated", zap.String("team_id", teamID))
		m.bus.Publish(events.EventTeamEliminated, events.Payload{
			events.KeyTeamID: teamID,
		})
	}
	return current
}

// LoseLife convenience: subtracts one life.
func (m *Manager) LoseLife(teamID string) int {
	return m.SetLives(teamID, m.Lives(teamID)-1)
}

// IsEliminated reports whether a team has zero lives.
func (m *Manager) IsEliminated(teamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[teamID]; ok {
		return rec.Eliminated
	}
	return false
}

// IsGameOver reports whether elimination should end the session. With
// requireAllEliminated, every team must be out; otherwise one elimination is
// enough.
func (m *Manager) IsGameOver(requireAllEliminated bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	eliminated := 0
	for _, rec := range m.records {
		if rec.Eliminated {
			eliminated++
		}
	}
	if eliminated == 0 {
		return false
	}
	if requireAllEliminated {
		return eliminated == len(m.records)
	}
	return true
}

// TeamIDs returns the registered team IDs in setup order.
func (m *Manager) TeamIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Leader returns the team ID with the highest score. Ties go to the earlier
// registered team.
func (m *Manager) Leader() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	leader := ""
	best := -1
	for _, id := range m.order {
		if rec := m.records[id]; rec.Score > best {
			leader, best = id, rec.Score
		}
	}
	return leader
}

// Destroy clears the in-memory ledger and removes the persisted entries.
// Safe to call more than once.
func (m *Manager) Destroy() {
	m.mu.Lock()
	failed := make(map[string]error)
	for id := range m.records {
		if err := m.store.Remove(keyPrefix + id); err != nil {
			failed[id] = err
		}
	}
	m.records = make(map[string]*record)
	m.order = nil
	m.mu.Unlock()

	for id, err := range failed {
		m.reportStoreError(id, err)
	}
}

func (m *Manager) unknownTeam(teamID string) int {
	m.logger.Warn("unknown team", zap.String("team_id", teamID))
	return 0
}

func (m *Manager) load(teamID string) (*record, bool) {
	value, err := m.store.Get(keyPrefix + teamID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("failed to read persisted ledger",
				zap.String("team_id", teamID),
				zap.Error(err),
			)
		}
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		m.logger.Warn("discarding corrupt ledger entry",
			zap.String("team_id", teamID),
			zap.Error(err),
		)
		return nil, false
	}
	return &rec, true
}

// persist writes a ledger entry to the store and returns the store error, if
// any. Locked callers report the error to the bus only after release.
func (m *Manager) persist(teamID string, rec *record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		m.logger.Warn("failed to encode ledger entry",
			zap.String("team_id", teamID),
			zap.Error(err),
		)
		return nil
	}
	return m.store.Set(keyPrefix+teamID, value)
}

// reportStoreError announces a persistence backend failure as ENGINE_ERROR so
// the host can surface it. Must be called without the lock held.
func (m *Manager) reportStoreError(teamID string, err error) {
	if err == nil {
		return
	}
	m.logger.Error("scoring store unavailable",
		zap.String("team_id", teamID),
		zap.Error(err),
	)
	m.bus.Publish(events.EventEngineError, events.Payload{
		events.KeyReason: "persistence",
		events.KeyTeamID: teamID,
		events.KeyError:  err.Error(),
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
