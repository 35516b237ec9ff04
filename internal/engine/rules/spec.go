package rules

import (
	"fmt"
	"strings"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

// RuleSpec is the serializable form of a rule, as it appears in session
// configuration.
type RuleSpec struct {
	ID         string          `mapstructure:"id" json:"id"`
	Trigger    string          `mapstructure:"trigger" json:"trigger"`
	Conditions []ConditionSpec `mapstructure:"conditions" json:"conditions"`
	Actions    []ActionSpec    `mapstructure:"actions" json:"actions"`
}

// ConditionSpec describes one comparison clause.
type ConditionSpec struct {
	Field string `mapstructure:"field" json:"field"`
	Op    string `mapstructure:"op" json:"op"`
	Value any    `mapstructure:"value" json:"value"`
}

// ActionSpec describes one action by kind plus kind-specific parameters.
type ActionSpec struct {
	Kind   string         `mapstructure:"kind" json:"kind"`
	Params map[string]any `mapstructure:"params" json:"params"`
}

// ActionFactory builds an action from its spec parameters. New action kinds
// are added by registering a factory; the interpreter loop never changes.
type ActionFactory func(params map[string]any) (Action, error)

// ActionRegistry maps action kind names to factories.
type ActionRegistry map[string]ActionFactory

// Register adds or replaces a factory for kind.
func (r ActionRegistry) Register(kind string, factory ActionFactory) {
	r[kind] = factory
}

// DefaultActionRegistry returns a registry with the built-in action kinds.
func DefaultActionRegistry() ActionRegistry {
	return ActionRegistry{
		"modifyScore": func(params map[string]any) (Action, error) {
			return ModifyScore{
				Points:        paramInt(params, "points"),
				Progressive:   paramBool(params, "progressive"),
				RatePerSecond: paramFloat(params, "ratePerSecond"),
				TeamField:     paramString(params, "teamField"),
			}, nil
		},
		"playSound": func(params map[string]any) (Action, error) {
			soundID := paramString(params, "soundId")
			if soundID == "" {
				return nil, fmt.Errorf("playSound requires soundId")
			}
			return PlaySound{SoundID: soundID}, nil
		},
		"applyPowerUp": func(params map[string]any) (Action, error) {
			effectType := paramString(params, "effectType")
			if effectType == "" {
				return nil, fmt.Errorf("applyPowerUp requires effectType")
			}
			return ApplyPowerUp{
				EffectType: effectType,
				DurationMs: paramFloat(params, "durationMs"),
				TeamField:  paramString(params, "teamField"),
			}, nil
		},
		"adjustLives": func(params map[string]any) (Action, error) {
			return AdjustLives{
				Delta:     paramInt(params, "delta"),
				TeamField: paramString(params, "teamField"),
			}, nil
		},
	}
}

// Build turns specs into executable rules using the registry for action
// construction. It fails on the first malformed spec so configuration errors
// surface at load time, not mid-game.
func Build(specs []RuleSpec, registry ActionRegistry) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		if spec.Trigger == "" {
			return nil, fmt.Errorf("rule %q: missing trigger", spec.ID)
		}

		rule := Rule{
			ID:      spec.ID,
			Trigger: events.Type(spec.Trigger),
		}
		for _, cs := range spec.Conditions {
			op := Operator(cs.Op)
			if !op.valid() {
				return nil, fmt.Errorf("rule %q: unknown operator %q", spec.ID, cs.Op)
			}
			rule.Conditions = append(rule.Conditions, Compare{
				Field: cs.Field,
				Op:    op,
				Value: cs.Value,
			})
		}
		for _, as := range spec.Actions {
			factory, ok := registry[as.Kind]
			if !ok {
				return nil, fmt.Errorf("rule %q: unknown action kind %q", spec.ID, as.Kind)
			}
			action, err := factory(as.Params)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
			}
			rule.Actions = append(rule.Actions, action)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// paramLookup is case-insensitive because config loaders differ in how they
// case map keys: YAML read through viper arrives all-lowercase, JSON keeps
// the author's camelCase.
func paramLookup(params map[string]any, key string) (any, bool) {
	if v, ok := params[key]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func paramString(params map[string]any, key string) string {
	v, _ := paramLookup(params, key)
	s, _ := v.(string)
	return s
}

func paramBool(params map[string]any, key string) bool {
	v, _ := paramLookup(params, key)
	b, _ := v.(bool)
	return b
}

func paramFloat(params map[string]any, key string) float64 {
	v, _ := paramLookup(params, key)
	f, _ := toFloat(v)
	return f
}

func paramInt(params map[string]any, key string) int {
	v, _ := paramLookup(params, key)
	f, _ := toFloat(v)
	return int(f)
}
