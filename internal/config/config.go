// Package config provides YAML-based configuration loading for hive.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file the CLI reads when --config is not given.
const DefaultPath = "hive.yaml"

// Config is the top-level hive configuration, loaded from hive.yaml.
type Config struct {
	Home      string          `yaml:"home"`
	InboxDir  string          `yaml:"inbox_dir"`
	QueueDir  string          `yaml:"queue_dir"`
	LogDir    string          `yaml:"log_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	Router    RouterConfig    `yaml:"router"`
	Messenger MessengerConfig `yaml:"messenger"`
	Health    HealthConfig    `yaml:"health"`
	Agents    AgentsConfig    `yaml:"agents"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
}

// DatabaseConfig selects the fleet database. sqlite uses Path; mysql uses
// the network fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RouterConfig controls inbox polling.
type RouterConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// MessengerConfig bounds ephemeral messages.
type MessengerConfig struct {
	MaxRetries      int      `yaml:"max_retries"`
	DefaultTTL      Duration `yaml:"default_ttl"`
	MailboxCapacity int      `yaml:"mailbox_capacity"`
}

// HealthConfig controls evaluation cadence and alert retention.
type HealthConfig struct {
	Interval  Duration `yaml:"interval"`
	Retention Duration `yaml:"retention"`
}

// AgentsConfig holds the liveness timeouts.
type AgentsConfig struct {
	OfflineAfter   Duration `yaml:"offline_after"`
	WaitingTimeout Duration `yaml:"waiting_timeout"`
	BusyTimeout    Duration `yaml:"busy_timeout"`
}

// DaemonConfig sets how often the coordinator advances each component.
type DaemonConfig struct {
	SweepInterval          Duration `yaml:"sweep_interval"`
	CleanupInterval        Duration `yaml:"cleanup_interval"`
	HeartbeatCheckInterval Duration `yaml:"heartbeat_check_interval"`
}

// DashboardConfig configures the HTTP API.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// TelegraphConfig configures alert notification.
type TelegraphConfig struct {
	Slack          SlackConfig   `yaml:"slack"`
	Discord        DiscordConfig `yaml:"discord"`
	DigestSchedule string        `yaml:"digest_schedule"`
	MinLevel       string        `yaml:"min_level"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether Slack is configured.
func (s SlackConfig) Enabled() bool { return s.BotToken != "" && s.Channel != "" }

// Enabled reports whether Discord is configured.
func (d DiscordConfig) Enabled() bool { return d.BotToken != "" && d.Channel != "" }

// Duration is a time.Duration written in YAML as a Go duration string
// such as "30s" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

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

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Home == "" {
		c.Home = ".hive"
	}
	if c.InboxDir == "" {
		c.InboxDir = filepath.Join(c.Home, "inbox")
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(c.Home, "queues")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.Home, "logs")
	}

	db := &c.Database
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.Path == "" {
		db.Path = filepath.Join(c.Home, "hive.db")
	}
	if db.Host == "" {
		db.Host = "127.0.0.1"
	}
	if db.Port == 0 {
		db.Port = 3306
	}
	if db.Name == "" {
		db.Name = "hive"
	}
	if db.User == "" {
		db.User = "root"
	}

	setDuration(&c.Router.PollInterval, 2*time.Second)
	if c.Messenger.MaxRetries == 0 {
		c.Messenger.MaxRetries = 3
	}
	setDuration(&c.Messenger.DefaultTTL, time.Hour)
	setDuration(&c.Health.Interval, 30*time.Second)
	setDuration(&c.Health.Retention, 24*time.Hour)
	setDuration(&c.Agents.OfflineAfter, 5*time.Minute)
	setDuration(&c.Agents.WaitingTimeout, 15*time.Minute)
	setDuration(&c.Agents.BusyTimeout, 30*time.Minute)
	setDuration(&c.Daemon.SweepInterval, 5*time.Second)
	setDuration(&c.Daemon.CleanupInterval, 5*time.Minute)
	setDuration(&c.Daemon.HeartbeatCheckInterval, time.Minute)
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Telegraph.MinLevel == "" {
		c.Telegraph.MinLevel = "warning"
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port %d out of range", c.Database.Port))
	}
	if c.Messenger.MaxRetries < 0 {
		errs = append(errs, "messenger.max_retries must not be negative")
	}
	if c.Messenger.MailboxCapacity < 0 {
		errs = append(errs, "messenger.mailbox_capacity must not be negative")
	}
	for name, d := range map[string]Duration{
		"router.poll_interval":            c.Router.PollInterval,
		"messenger.default_ttl":           c.Messenger.DefaultTTL,
		"health.interval":                 c.Health.Interval,
		"health.retention":                c.Health.Retention,
		"agents.offline_after":            c.Agents.OfflineAfter,
		"agents.waiting_timeout":          c.Agents.WaitingTimeout,
		"agents.busy_timeout":             c.Agents.BusyTimeout,
		"daemon.sweep_interval":           c.Daemon.SweepInterval,
		"daemon.cleanup_interval":         c.Daemon.CleanupInterval,
		"daemon.heartbeat_check_interval": c.Daemon.HeartbeatCheckInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative", name))
		}
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	switch c.Telegraph.MinLevel {
	case "critical", "warning", "info":
	default:
		errs = append(errs, fmt.Sprintf("telegraph.min_level %q must be critical, warning or info", c.Telegraph.MinLevel))
	}
	if c.Telegraph.DigestSchedule != "" {
		if _, err := cronParser.Parse(c.Telegraph.DigestSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("telegraph.digest_schedule: %v", err))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
