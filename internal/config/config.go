// Package config loads engine host configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abmakes/atoz-engine-go/internal/engine/rules"
)

// Config is the root configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Session SessionConfig `mapstructure:"session"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the demo host: the websocket event feed and the
// frame tick driving the engine.
type ServerConfig struct {
	WebSocketAddress string        `mapstructure:"websocket_address"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "sqlite"
	Path    string `mapstructure:"path"`
}

// TeamConfig declares one competing team.
type TeamConfig struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	Color         string `mapstructure:"color"`
	StartingScore int    `mapstructure:"starting_score"`
	StartingLives int    `mapstructure:"starting_lives"`
	MaxLives      int    `mapstructure:"max_lives"`
}

// SequencingConfig controls question ordering.
type SequencingConfig struct {
	Mode                string `mapstructure:"mode"`
	TruncateForFairness bool   `mapstructure:"truncate_for_fairness"`
	RandomizeOrder      bool   `mapstructure:"randomize_order"`
	Seed                int64  `mapstructure:"seed"`
}

// SessionConfig declares one game session.
type SessionConfig struct {
	Teams                []TeamConfig     `mapstructure:"teams"`
	QuestionTimeMs       float64          `mapstructure:"question_time_ms"`
	RequireAllEliminated bool             `mapstructure:"require_all_eliminated"`
	QuestionsFile        string           `mapstructure:"questions_file"`
	Sequencing           SequencingConfig `mapstructure:"sequencing"`
	Rules                []rules.RuleSpec `mapstructure:"rules"`
}

// Load reads configuration from path, applying defaults and ATOZ_-prefixed
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("server.websocket_address", ":8090")
	v.SetDefault("server.tick_interval", 33*time.Millisecond)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("session.question_time_ms", 30000)
	v.SetDefault("session.sequencing.mode", "sharedPool")

	v.SetEnvPrefix("ATOZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if len(c.Session.Teams) == 0 {
		return fmt.Errorf("session.teams must not be empty")
	}
	seen := make(map[string]bool, len(c.Session.Teams))
	for i, team := range c.Session.Teams {
		if team.ID == "" {
			return fmt.Errorf("session.teams[%d]: missing id", i)
		}
		if seen[team.ID] {
			return fmt.Errorf("session.teams[%d]: duplicate id %q", i, team.ID)
		}
		seen[team.ID] = true
	}
	if c.Session.QuestionTimeMs <= 0 {
		return fmt.Errorf("session.question_time_ms must be positive")
	}
	if c.Session.QuestionsFile == "" {
		return fmt.Errorf("session.questions_file is required")
	}
	return nil
}
