// Package powerup tracks timed modifiers applied to targets (usually teams).
// Instances are keyed by (effect type, target); re-applying the same pair
// refreshes the remaining duration instead of stacking it additively, since
// unbounded stacking would let one team bank arbitrarily long modifiers.
package powerup

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

// Common effect types understood by the built-in rule actions. Hosts may use
// arbitrary strings; these are just the vocabulary the bundled rules speak.
const (
	EffectDoublePoints = "doublePoints"
	EffectShield       = "shield"
	EffectTimeFreeze   = "timeFreeze"
)

// Instance is an active modifier on a target.
type Instance struct {
	ID          string
	EffectType  string
	TargetID    string
	DurationMs  float64
	RemainingMs float64
}

type key struct {
	effectType string
	targetID   string
}

// Manager owns all active power-up instances for a session.
type Manager struct {
	mu     sync.Mutex
	logger *zap.Logger
	bus    *events.Bus
	active map[key]*Instance
	order  []key
}

// NewManager creates an empty power-up manager.
func NewManager(bus *events.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		bus:    bus,
		active: make(map[key]*Instance),
	}
}

// Apply activates an effect on a target for durationMs. If the same
// (effectType, targetID) pair is already active its duration is refreshed to
// durationMs; different effect types on the same target coexist.
func (m *Manager) Apply(effectType, targetID string, durationMs float64) {
	if durationMs <= 0 {
		m.logger.Warn("rejected power-up with non-positive duration",
			zap.String("effect_type", effectType),
			zap.String("target_id", targetID),
			zap.Float64("duration_ms", durationMs),
		)
		return
	}

	k := key{effectType: effectType, targetID: targetID}
	m.mu.Lock()
	if existing, ok := m.active[k]; ok {
		existing.DurationMs = durationMs
		existing.RemainingMs = durationMs
		m.mu.Unlock()
		m.logger.Debug("refreshed power-up",
			zap.String("effect_type", effectType),
			zap.String("target_id", targetID),
		)
		return
	}
	m.active[k] = &Instance{
		ID:          uuid.NewString(),
		EffectType:  effectType,
		TargetID:    targetID,
		DurationMs:  durationMs,
		RemainingMs: durationMs,
	}
	m.order = append(m.order, k)
	m.mu.Unlock()

	m.bus.Publish(events.EventPowerUpApplied, events.Payload{
		events.KeyEffectType: effectType,
		events.KeyTargetID:   targetID,
		events.KeyDuration:   durationMs,
	})
}

// IsActiveForTarget reports whether the effect is currently applied to the
// target. Pure query, no side effects.
func (m *Manager) IsActiveForTarget(effectType, targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[key{effectType: effectType, targetID: targetID}]
	return ok
}

// ActiveForTarget returns copies of every instance applied to the target.
func (m *Manager) ActiveForTarget(targetID string) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Instance
	for _, k := range m.order {
		if k.targetID == targetID {
			out = append(out, *m.active[k])
		}
	}
	return out
}

// Remove cancels an effect immediately, emitting POWERUP_REMOVED. Removing
// an absent pair is a no-op.
func (m *Manager) Remove(effectType, targetID string) {
	k := key{effectType: effectType, targetID: targetID}
	m.mu.Lock()
	if _, ok := m.active[k]; !ok {
		m.mu.Unlock()
		return
	}
	m.drop(k)
	m.mu.Unlock()

	m.bus.Publish(events.EventPowerUpRemoved, events.Payload{
		events.KeyEffectType: effectType,
		events.KeyTargetID:   targetID,
	})
}

// Update decrements every active duration by deltaMs; instances reaching
// zero are removed and announced with POWERUP_EXPIRED.
func (m *Manager) Update(deltaMs float64) {
	if deltaMs <= 0 {
		return
	}

	m.mu.Lock()
	var expired []key
	for _, k := range m.order {
		inst := m.active[k]
		inst.RemainingMs -= deltaMs
		if inst.RemainingMs <= 0 {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		m.drop(k)
	}
	m.mu.Unlock()

	for _, k := range expired {
		m.logger.Debug("power-up expired",
			zap.String("effect_type", k.effectType),
			zap.String("target_id", k.targetID),
		)
		m.bus.Publish(events.EventPowerUpExpired, events.Payload{
			events.KeyEffectType: k.effectType,
			events.KeyTargetID:   k.targetID,
		})
	}
}

// drop removes the instance under the lock.
func (m *Manager) drop(k key) {
	delete(m.active, k)
	for i, existing := range m.order {
		if existing == k {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Destroy removes every instance without emitting events. Safe to call more
// than once.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[key]*Instance)
	m.order = nil
}
