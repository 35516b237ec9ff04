// Package audio defines the playback contract the rule engine fires into.
// Real playback lives with the host; the engine only ever calls Play and
// ignores the outcome.
package audio

import "go.uber.org/zap"

// Player plays a sound by identifier. Implementations must be non-blocking;
// failures are the implementation's to swallow or report out of band.
type Player interface {
	Play(soundID string)
}

// LogPlayer is a Player that only logs. It is the default collaborator for
// hosts without an audio pipeline and for tests.
type LogPlayer struct {
	logger *zap.Logger
}

// NewLogPlayer creates a LogPlayer.
func NewLogPlayer(logger *zap.Logger) *LogPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPlayer{logger: logger}
}

// Play logs the requested sound.
func (p *LogPlayer) Play(soundID string) {
	p.logger.Debug("play sound", zap.String("sound_id", soundID))
}
