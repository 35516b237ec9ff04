package rules

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/audio"
	"github.com/abmakes/atoz-engine-go/internal/engine/events"
	"github.com/abmakes/atoz-engine-go/internal/engine/powerup"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
)

// ActionContext carries everything an action may touch: the triggering event,
// the evaluation snapshot, and the managers the engine was wired with.
type ActionContext struct {
	Event    events.Event
	Snapshot Snapshot
	Scoring  *scoring.Manager
	PowerUps *powerup.Manager
	Audio    audio.Player
	Logger   *zap.Logger
}

// teamID resolves the team an action targets: the named payload field, or
// the conventional "teamId" field when the action leaves it empty.
func (ctx ActionContext) teamID(field string) string {
	if field == "" {
		field = events.KeyTeamID
	}
	return ctx.Event.Payload.String(field)
}

// Action is one step of a rule's action list. Actions are not transactional:
// a failing action is logged and its siblings still run.
type Action interface {
	Execute(ctx ActionContext) error
}

// ModifyScore adjusts the acting team's score. With Progressive unset the
// fixed Points value applies; with it set the amount is computed from the
// remaining answer time at RatePerSecond. Either way the result is scaled by
// the multiplier carried in the event payload (missing multiplier means 1).
type ModifyScore struct {
	Points        int
	Progressive   bool
	RatePerSecond float64
	TeamField     string
}

// Execute implements Action.
func (a ModifyScore) Execute(ctx ActionContext) error {
	teamID := ctx.teamID(a.TeamField)
	if teamID == "" {
		return fmt.Errorf("modifyScore: event %s carries no team", ctx.Event.Type)
	}

	amount := float64(a.Points)
	if a.Progressive {
		remainingMs, _ := ctx.Event.Payload.Float(events.KeyTimeRemainingMs)
		amount = a.RatePerSecond * remainingMs / 1000
	}
	multiplier, ok := ctx.Event.Payload.Float(events.KeyMultiplier)
	if !ok {
		multiplier = 1
	}
	points := int(math.Round(amount * multiplier))

	switch {
	case points > 0:
		ctx.Scoring.AddScore(teamID, points)
	case points < 0:
		ctx.Scoring.SubtractScore(teamID, -points)
	}
	return nil
}

// PlaySound fires a sound into the audio collaborator. Fire-and-forget; the
// player owns any failure handling.
type PlaySound struct {
	SoundID string
}

// Execute implements Action.
func (a PlaySound) Execute(ctx ActionContext) error {
	if a.SoundID == "" {
		return fmt.Errorf("playSound: empty sound id")
	}
	ctx.Audio.Play(a.SoundID)
	return nil
}

// ApplyPowerUp grants a timed effect to the acting team.
type ApplyPowerUp struct {
	EffectType string
	DurationMs float64
	TeamField  string
}

// Execute implements Action.
func (a ApplyPowerUp) Execute(ctx ActionContext) error {
	teamID := ctx.teamID(a.TeamField)
	if teamID == "" {
		return fmt.Errorf("applyPowerUp: event %s carries no team", ctx.Event.Type)
	}
	ctx.PowerUps.Apply(a.EffectType, teamID, a.DurationMs)
	return nil
}

// AdjustLives changes the acting team's lives by Delta (negative values cost
// lives). A shield power-up on the team absorbs a life loss.
type AdjustLives struct {
	Delta     int
	TeamField string
}

// Execute implements Action.
func (a AdjustLives) Execute(ctx ActionContext) error {
	teamID := ctx.teamID(a.TeamField)
	if teamID == "" {
		return fmt.Errorf("adjustLives: event %s carries no team", ctx.Event.Type)
	}
	if a.Delta < 0 && ctx.PowerUps.IsActiveForTarget(powerup.EffectShield, teamID) {
		ctx.PowerUps.Remove(powerup.EffectShield, teamID)
		ctx.Logger.Info("shield absorbed life loss", zap.String("team_id", teamID))
		return nil
	}
	ctx.Scoring.SetLives(teamID, ctx.Scoring.Lives(teamID)+a.Delta)
	return nil
}
