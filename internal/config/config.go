// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Required credential environment variables. Secrets never live in the YAML
// file; they arrive through the environment or a .env file.
const (
	EnvAlpacaKey    = "APCA_API_KEY_ID"
	EnvAlpacaSecret = "APCA_API_SECRET_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)

const (
	defaultModel     = "gpt-4o"
	defaultTimezone  = "America/New_York"
	defaultInterval  = 30
	defaultMaxTurns  = 100
	defaultObjective = "You are managing a stock portfolio. Review your positions, " +
		"research the market, and trade when you see an opportunity."
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Model       ModelConfig       `yaml:"model"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Session     SessionConfig     `yaml:"session"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode    string `yaml:"mode"`    // paper | live
	DataDir string `yaml:"data_dir"` // per-profile files live under <data_dir>/<profile>/
}

// ModelConfig defines model-provider settings.
type ModelConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"` // optional OpenAI-compatible endpoint override
}

// ScheduleConfig defines market hours and continuous-mode pacing.
type ScheduleConfig struct {
	Timezone        string `yaml:"timezone"`         // e.g., "America/New_York"
	IntervalMinutes int    `yaml:"interval_minutes"` // gap between sessions in continuous mode
	AlwaysOpen      bool   `yaml:"always_open"`      // ignore market hours (paper dry runs)
}

// SessionConfig tunes the orchestrator loop.
type SessionConfig struct {
	Objective        string `yaml:"objective"`
	MaxTurns         int    `yaml:"max_turns"`
	RequireReasoning bool   `yaml:"require_reasoning"` // provider emits reasoning items before calls
}

// DashboardConfig defines the optional read-only dashboard.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
// A missing file yields the defaults, so a fresh checkout runs with just
// credentials in the environment.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := defaults()

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func defaults() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "paper", DataDir: "."},
		Model:       ModelConfig{Name: defaultModel},
		Schedule:    ScheduleConfig{Timezone: defaultTimezone, IntervalMinutes: defaultInterval},
		Session:     SessionConfig{Objective: defaultObjective, MaxTurns: defaultMaxTurns},
		Dashboard:   DashboardConfig{Port: 9847},
	}
}

func (c *Config) normalize() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "paper"
	}
	if c.Environment.DataDir == "" {
		c.Environment.DataDir = "."
	}
	if c.Model.Name == "" {
		c.Model.Name = defaultModel
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	if c.Schedule.IntervalMinutes == 0 {
		c.Schedule.IntervalMinutes = defaultInterval
	}
	if c.Session.Objective == "" {
		c.Session.Objective = defaultObjective
	}
	if c.Session.MaxTurns == 0 {
		c.Session.MaxTurns = defaultMaxTurns
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if c.Schedule.IntervalMinutes < 5 {
		return fmt.Errorf("schedule.interval_minutes must be >= 5 (got %d)", c.Schedule.IntervalMinutes)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session.max_turns must be > 0")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}
	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Interval returns the continuous-mode session interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// LoadEnv loads a .env file if present and verifies the required
// credentials are set. A missing .env file is not an error; missing
// credentials are, named so the fix is obvious.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	var missing []string
	for _, key := range []string{EnvAlpacaKey, EnvAlpacaSecret, EnvOpenAIKey} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Profile names one isolation unit: its own thread, report, and log files
// under <data_dir>/<profile>/.
type Profile struct {
	Name string
	Dir  string
}

// NewProfile builds the path set for a named profile and ensures its
// directory exists.
func (c *Config) NewProfile(name string) (*Profile, error) {
	if name == "" {
		name = "default"
	}
	dir := filepath.Join(c.Environment.DataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}
	return &Profile{Name: name, Dir: dir}, nil
}

// ThreadPath is where the profile's conversation thread persists.
func (p *Profile) ThreadPath() string {
	return filepath.Join(p.Dir, fmt.Sprintf("thread-%s.json", p.Name))
}

// ReportPath is where the profile's CSV trade report is written.
func (p *Profile) ReportPath() string {
	return filepath.Join(p.Dir, fmt.Sprintf("report-%s.csv", p.Name))
}

// LogPath is where the profile's session log is appended.
func (p *Profile) LogPath() string {
	return filepath.Join(p.Dir, fmt.Sprintf("bot-%s.log", p.Name))
}
