package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedTimeframe is wrapped by Error when a timeframe is not 24h, 7d or 30d.
var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

// Error reports missing or invalid configuration. It is raised before any
// refresh run is created.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the SQL driver. Path is used by sqlite, DSN by postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RedditConfig holds upstream credentials, the community list and fetch limits.
type RedditConfig struct {
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	UserAgent      string   `yaml:"user_agent"`
	TokenURL       string   `yaml:"token_url"`
	APIBaseURL     string   `yaml:"api_base_url"`
	Subreddits     []string `yaml:"subreddits"`
	PostLimit      int      `yaml:"post_limit"`
	CommentLimit   int      `yaml:"comment_limit"`
	RequestDelay   string   `yaml:"request_delay"`
	RetryBaseDelay string   `yaml:"retry_base_delay"`
	Timeout        string   `yaml:"timeout"`
}

// HasUserCredentials reports whether a password grant can be attempted.
func (r RedditConfig) HasUserCredentials() bool {
	return r.Username != "" && r.Password != ""
}

// ParseRequestDelay returns the courtesy delay between posts.
func (r RedditConfig) ParseRequestDelay() time.Duration {
	return parseDuration(r.RequestDelay, time.Second)
}

// ParseRetryBaseDelay returns the base of the linear 429/403 backoff.
func (r RedditConfig) ParseRetryBaseDelay() time.Duration {
	return parseDuration(r.RetryBaseDelay, 2*time.Second)
}

// ParseTimeout returns the per-request HTTP timeout.
func (r RedditConfig) ParseTimeout() time.Duration {
	return parseDuration(r.Timeout, 30*time.Second)
}

// ScheduleConfig configures periodic refresh runs.
type ScheduleConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Interval   string   `yaml:"interval"`
	Timeframes []string `yaml:"timeframes"`
}

// ParseInterval returns the schedule interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	return parseDuration(s.Interval, 6*time.Hour)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
	// TriggerRateLimit is the number of refresh triggers allowed per IP per minute.
	TriggerRateLimit int `yaml:"trigger_rate_limit"`
}

// AlertsConfig configures run notifications.
type AlertsConfig struct {
	Slack         SlackConfig   `yaml:"slack"`
	Discord       DiscordConfig `yaml:"discord"`
	Webhook       WebhookConfig `yaml:"webhook"`
	NotifySuccess bool          `yaml:"notify_on_success"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./sentiradar.db"},
		Reddit: RedditConfig{
			UserAgent:  "sentiradar/1.0",
			TokenURL:   "https://www.reddit.com/api/v1/access_token",
			APIBaseURL: "https://oauth.reddit.com",
			Subreddits: []string{
				"OpenAI", "ChatGPT", "ChatGPTCoding", "ClaudeAI", "singularity",
			},
			PostLimit:      50,
			CommentLimit:   20,
			RequestDelay:   "1s",
			RetryBaseDelay: "2s",
			Timeout:        "30s",
		},
		Schedule: ScheduleConfig{
			Interval:   "6h",
			Timeframes: []string{"24h"},
		},
		Server: ServerConfig{Port: 8080, TriggerRateLimit: 6},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the settings a refresh run cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return &Error{Field: "database.path", Reason: "required for sqlite"}
		}
	case "postgres":
		if c.Database.DSN == "" {
			return &Error{Field: "database.dsn", Reason: "required for postgres"}
		}
	default:
		return &Error{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", c.Database.Driver)}
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return &Error{Field: "reddit.client_id", Reason: "client id and secret are required"}
	}
	if (c.Reddit.Username == "") != (c.Reddit.Password == "") {
		return &Error{Field: "reddit.username", Reason: "username and password must be set together"}
	}
	if len(c.Reddit.Subreddits) == 0 {
		return &Error{Field: "reddit.subreddits", Reason: "at least one subreddit is required"}
	}
	if c.Reddit.PostLimit <= 0 || c.Reddit.CommentLimit < 0 {
		return &Error{Field: "reddit.post_limit", Reason: "limits must be positive"}
	}
	for _, tf := range c.Schedule.Timeframes {
		if !ValidTimeframe(tf) {
			return &Error{Field: "schedule.timeframes", Reason: fmt.Sprintf("%q is not one of 24h, 7d, 30d", tf), Err: ErrUnsupportedTimeframe}
		}
	}
	return nil
}

// ValidTimeframe reports whether tf is one of the supported run windows.
func ValidTimeframe(tf string) bool {
	switch tf {
	case "24h", "7d", "30d":
		return true
	}
	return false
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTIRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Driver = "postgres"
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("REDDIT_USERNAME"); v != "" {
		cfg.Reddit.Username = v
	}
	if v := os.Getenv("REDDIT_PASSWORD"); v != "" {
		cfg.Reddit.Password = v
	}
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		cfg.Reddit.UserAgent = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
