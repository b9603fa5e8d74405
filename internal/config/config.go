// Package config provides YAML-based configuration loading for Carevoice.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Carevoice configuration, loaded from
// carevoice.yaml. Secrets (API keys, bot tokens) are never read from the
// file; they come from the environment (OPENAI_API_KEY, RETELL_API_KEY,
// SLACK_BOT_TOKEN, DISCORD_BOT_TOKEN).
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Store         StoreConfig     `yaml:"store"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	Extraction    ExtractConfig   `yaml:"extraction"`
	Call          CallConfig      `yaml:"call"`
	Notifications NotifyConfig    `yaml:"notifications"`
}

// ServerConfig holds HTTP front door settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	UploadDir string `yaml:"upload_dir"`
}

// StoreConfig holds session store settings.
type StoreConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// SchedulerConfig controls the coordinator's polling cadence.
type SchedulerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// ExtractConfig holds document extraction settings.
type ExtractConfig struct {
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"` // optional override prepended to the default prompt
}

// CallConfig holds call provider settings.
type CallConfig struct {
	BaseURL             string `yaml:"base_url"`
	AgentID             string `yaml:"agent_id"`
	FromNumber          string `yaml:"from_number"`
	ToNumber            string `yaml:"to_number"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
}

// NotifyConfig holds optional care-team notification channels. A channel is
// enabled when its channel id is set and its bot token is in the environment.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig identifies a notification destination.
type ChannelConfig struct {
	Channel string `yaml:"channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploaded_notes"
	}
	if c.Store.BaseDir == "" {
		c.Store.BaseDir = "sessions"
	}
	if c.Scheduler.IntervalSeconds == 0 {
		c.Scheduler.IntervalSeconds = 5
	}
	if c.Call.PollIntervalSeconds == 0 {
		c.Call.PollIntervalSeconds = 5
	}
	if c.Call.TimeoutSeconds == 0 {
		c.Call.TimeoutSeconds = 3600
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Call.FromNumber == "" {
		errs = append(errs, "call.from_number is required")
	}
	if c.Call.ToNumber == "" {
		errs = append(errs, "call.to_number is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Scheduler.IntervalSeconds < 0 {
		errs = append(errs, "scheduler.interval_seconds must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TickInterval returns the coordinator's polling interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// CallPollInterval returns the call completion polling interval.
func (c *Config) CallPollInterval() time.Duration {
	return time.Duration(c.Call.PollIntervalSeconds) * time.Second
}

// CallTimeout returns the call completion wait budget.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Call.TimeoutSeconds) * time.Second
}
