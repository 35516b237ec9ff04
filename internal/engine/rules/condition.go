package rules

import (
	"fmt"
	"strings"
)

// payloadPrefix marks condition fields that read from the triggering event's
// payload rather than from a registered state provider.
const payloadPrefix = "payload."

// Snapshot is the single consistent view a rule is evaluated against: the
// triggering event's payload plus every state value the rule references,
// resolved once before any condition runs.
type Snapshot struct {
	Payload map[string]any
	State   map[string]any
}

// Lookup resolves a condition field. "payload.x" reads the event payload;
// anything else reads the pre-resolved state values.
func (s Snapshot) Lookup(field string) (any, bool) {
	if name, ok := strings.CutPrefix(field, payloadPrefix); ok {
		v, present := s.Payload[name]
		return v, present
	}
	v, present := s.State[field]
	return v, present
}

// Condition is one clause of a rule's ANDed condition list.
type Condition interface {
	// Evaluate reports whether the clause holds against the snapshot.
	Evaluate(snap Snapshot) (bool, error)
	// StateKeys lists the state-provider keys the clause reads, so the
	// engine can resolve them into the snapshot up front.
	StateKeys() []string
}

// Compare is the general comparison condition: it reads Field from the
// snapshot and compares it with Value using Op. A missing field fails the
// clause rather than erroring, so rules degrade quietly when a payload
// omits an optional field.
type Compare struct {
	Field string
	Op    Operator
	Value any
}

// Evaluate implements Condition.
func (c Compare) Evaluate(snap Snapshot) (bool, error) {
	if !c.Op.valid() {
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
	actual, ok := snap.Lookup(c.Field)
	if !ok {
		return false, nil
	}
	return compare(c.Op, actual, c.Value)
}

// StateKeys implements Condition.
func (c Compare) StateKeys() []string {
	if strings.HasPrefix(c.Field, payloadPrefix) {
		return nil
	}
	return []string{c.Field}
}
