package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/audio"
	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/engine/powerup"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
)

// StateProvider resolves a dotted state key (e.g. "scoring.score.t1") into a
// value. Providers are registered per key prefix; the full key is passed so
// one provider can serve a whole family of keys.
type StateProvider func(key string) (any, bool)

// Engine subscribes to rule trigger events and interprets the loaded rules
// against them. One engine serves one session.
type Engine struct {
	mu        sync.Mutex
	logger    *zap.Logger
	bus       *events.Bus
	scoring   *scoring.Manager
	powerUps  *powerup.Manager
	audio     audio.Player
	providers map[string]StateProvider
	byTrigger map[events.Type][]Rule
	unsubs    []func()
}

// NewEngine creates a rule engine wired to the given managers. Rules are
// added with LoadRules before play starts.
func NewEngine(bus *events.Bus, scoringMgr *scoring.Manager, powerUps *powerup.Manager, player audio.Player, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if player == nil {
		player = audio.NewLogPlayer(logger)
	}
	return &Engine{
		logger:    logger,
		bus:       bus,
		scoring:   scoringMgr,
		powerUps:  powerUps,
		audio:     player,
		providers: make(map[string]StateProvider),
		byTrigger: make(map[events.Type][]Rule),
	}
}

// RegisterStateProvider registers a provider for every state key starting
// with prefix (the segment before the first dot).
func (e *Engine) RegisterStateProvider(prefix string, provider StateProvider) {
	if prefix == "" || provider == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[prefix] = provider
}

// LoadRules registers rules and subscribes to each new trigger type. Rules
// without an ID get one assigned.
func (e *Engine) LoadRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		trigger := rule.Trigger
		if _, subscribed := e.byTrigger[trigger]; !subscribed {
			e.unsubs = append(e.unsubs, e.bus.Subscribe(trigger, e.handleTrigger))
		}
		e.byTrigger[trigger] = append(e.byTrigger[trigger], rule)
		e.logger.Debug("loaded rule",
			zap.String("rule_id", rule.ID),
			zap.String("trigger", string(trigger)),
			zap.Int("conditions", len(rule.Conditions)),
			zap.Int("actions", len(rule.Actions)),
		)
	}
}

func (e *Engine) handleTrigger(event events.Event) {
	e.mu.Lock()
	rules := e.byTrigger[event.Type]
	e.mu.Unlock()

	for _, rule := range rules {
		e.evaluate(rule, event)
	}
}

// evaluate builds the rule's snapshot, runs its conditions with
// short-circuit AND semantics, and on success executes every action. A
// failing action never stops its siblings.
func (e *Engine) evaluate(rule Rule, event events.Event) {
	snap := e.buildSnapshot(rule, event)

	for _, cond := range rule.Conditions {
		ok, err := cond.Evaluate(snap)
		if err != nil {
			e.logger.Warn("condition evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			return
		}
		if !ok {
			return
		}
	}

	for i, action := range rule.Actions {
		if err := e.runAction(action, event, snap); err != nil {
			e.logger.Error("rule action failed",
				zap.String("rule_id", rule.ID),
				zap.Int("action_index", i),
				zap.Error(err),
			)
		}
	}
}

// runAction executes a single action, converting panics into errors so one
// misbehaving action cannot halt rule evaluation.
func (e *Engine) runAction(action Action, event events.Event, snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action.Execute(ActionContext{
		Event:    event,
		Snapshot: snap,
		Scoring:  e.scoring,
		PowerUps: e.powerUps,
		Audio:    e.audio,
		Logger:   e.logger,
	})
}

// buildSnapshot resolves every state key the rule's conditions reference so
// evaluation sees one consistent view, never a partial read mid-way through.
func (e *Engine) buildSnapshot(rule Rule, event events.Event) Snapshot {
	snap := Snapshot{
		Payload: event.Payload,
		State:   make(map[string]any),
	}
	for _, cond := range rule.Conditions {
		for _, key := range cond.StateKeys() {
			if _, done := snap.State[key]; done {
				continue
			}
			if value, ok := e.resolveState(key); ok {
				snap.State[key] = value
			}
		}
	}
	return snap
}

func (e *Engine) resolveState(key string) (any, bool) {
	prefix, _, _ := strings.Cut(key, ".")
	e.mu.Lock()
	provider, ok := e.providers[prefix]
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("no state provider for key", zap.String("key", key))
		return nil, false
	}
	return provider(key)
}

// RuleCount reports the number of loaded rules.
func (e *Engine) RuleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, rules := range e.byTrigger {
		n += len(rules)
	}
	return n
}

// Destroy unsubscribes every trigger handler and drops the loaded rules.
// Safe to call more than once.
func (e *Engine) Destroy() {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.byTrigger = make(map[events.Type][]Rule)
	e.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}
