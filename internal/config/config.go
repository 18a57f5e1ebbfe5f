// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads engine configuration from YAML and the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/areas/internal/secrets"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Email     EmailConfig     `yaml:"email"`
	Services  ServicesConfig  `yaml:"services"`
}

// ServerConfig configures the HTTP listener serving webhooks and the
// operational API.
type ServerConfig struct {
	// Addr is the TCP address to listen on (e.g., ":8080").
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxWebhookBytes limits webhook request bodies.
	MaxWebhookBytes int64 `yaml:"max_webhook_bytes"`
}

// LogConfig mirrors internal/log.Config in YAML form.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// DatabaseConfig selects the store implementation.
type DatabaseConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Ignored for other drivers.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string. Accepts secret references.
	DSN string `yaml:"dsn"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// SchedulerConfig configures the tick cadences and maintenance.
type SchedulerConfig struct {
	// Interval is the main cadence (timers, Gmail, Reddit, Trello).
	Interval time.Duration `yaml:"interval"`

	// LiveInterval is the fast cadence for Twitch live detection.
	LiveInterval time.Duration `yaml:"live_interval"`

	// MaintenanceInterval is the cadence for retention cleanup.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`

	// Workers bounds per-tick concurrency. 1 processes Areas sequentially.
	Workers int `yaml:"workers"`

	// Timezone is the IANA location used for timer HH:MM comparisons.
	// Empty means the process local time.
	Timezone string `yaml:"timezone"`

	// HookStateRetentionDays removes dated timer occurrence keys not updated
	// for this many days.
	HookStateRetentionDays int `yaml:"hook_state_retention_days"`

	// ExecutionRetentionDays removes terminal executions older than this.
	ExecutionRetentionDays int `yaml:"execution_retention_days"`

	// LongRunningThreshold flags RUNNING executions older than this.
	LongRunningThreshold time.Duration `yaml:"long_running_threshold"`
}

// EventsConfig configures execution event publishing over NATS.
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL of the NATS server. Accepts secret references.
	URL string `yaml:"url"`

	// Embedded starts an in-process NATS server instead of dialing URL.
	Embedded bool `yaml:"embedded"`

	// SubjectPrefix is prepended to the lower-cased status ("areas.executions.success").
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	Traces TracesConfig `yaml:"traces"`
}

// TracesConfig selects a span exporter. An empty Exporter disables export.
type TracesConfig struct {
	// Exporter is "console", "otlp" (gRPC) or "otlp_http".
	Exporter string            `yaml:"exporter"`
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
}

// EmailConfig configures the SMTP relay used by send_email.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ServicesConfig holds per-integration credentials and endpoints.
type ServicesConfig struct {
	GitHub  GitHubConfig      `yaml:"github"`
	Discord DiscordConfig     `yaml:"discord"`
	Google  OAuthClientConfig `yaml:"google"`
	Reddit  RedditConfig      `yaml:"reddit"`
	Spotify OAuthClientConfig `yaml:"spotify"`
	Twitch  OAuthClientConfig `yaml:"twitch"`
	Trello  TrelloConfig      `yaml:"trello"`
}

// GitHubConfig configures webhook verification.
type GitHubConfig struct {
	// WebhookSecret enables X-Hub-Signature-256 verification when set.
	WebhookSecret string `yaml:"webhook_secret"`
}

// DiscordConfig configures the bot used for Discord reactions.
type DiscordConfig struct {
	BotToken string  `yaml:"bot_token"`
	BaseURL  string  `yaml:"base_url"`
	RateRPS  float64 `yaml:"rate_rps"`
}

// OAuthClientConfig describes an OAuth2 application registration.
type OAuthClientConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// TokenURL overrides the provider's default token endpoint.
	TokenURL string `yaml:"token_url"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// RefreshBuffer refreshes tokens this long before they expire.
	RefreshBuffer time.Duration `yaml:"refresh_buffer"`

	// RateRPS limits outgoing API requests per second.
	RateRPS float64 `yaml:"rate_rps"`
}

// RedditConfig adds the User-Agent Reddit requires.
type RedditConfig struct {
	OAuthClientConfig `yaml:",inline"`
	UserAgent         string `yaml:"user_agent"`
}

// TrelloConfig configures Trello's key+token authentication.
type TrelloConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	RateRPS float64 `yaml:"rate_rps"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from an optional YAML file, applies defaults and
// environment overrides, then validates. Environment variables take
// precedence over the file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		// The XDG config file is optional.
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &areaserrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxWebhookBytes == 0 {
		c.Server.MaxWebhookBytes = 10 << 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		if dir, err := DataDir(); err == nil {
			c.Database.Path = filepath.Join(dir, "areas.db")
		} else {
			c.Database.Path = "areas.db"
		}
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Minute
	}
	if c.Scheduler.LiveInterval == 0 {
		c.Scheduler.LiveInterval = 30 * time.Second
	}
	if c.Scheduler.MaintenanceInterval == 0 {
		c.Scheduler.MaintenanceInterval = time.Hour
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 1
	}
	if c.Scheduler.HookStateRetentionDays == 0 {
		c.Scheduler.HookStateRetentionDays = 30
	}
	if c.Scheduler.ExecutionRetentionDays == 0 {
		c.Scheduler.ExecutionRetentionDays = 30
	}
	if c.Scheduler.LongRunningThreshold == 0 {
		c.Scheduler.LongRunningThreshold = 10 * time.Minute
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "areas.executions"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "areas"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "unknown"
	}

	if c.Email.Port == 0 {
		c.Email.Port = 587
	}

	if c.Services.Spotify.RefreshBuffer == 0 {
		c.Services.Spotify.RefreshBuffer = 5 * time.Minute
	}
	if c.Services.Reddit.UserAgent == "" {
		c.Services.Reddit.UserAgent = "areas/1.0"
	}
}

// loadFromFile reads YAML from path, expanding a leading ~/.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies AREAS_* environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("AREAS_TRACES_EXPORTER"); val != "" {
		c.Telemetry.Traces.Exporter = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Telemetry.Traces.Endpoint = val
	}

	if val := os.Getenv("AREAS_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("AREAS_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = d
		}
	}

	if val := os.Getenv("AREAS_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	if val := os.Getenv("AREAS_DB_DRIVER"); val != "" {
		c.Database.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("AREAS_DB_PATH"); val != "" {
		c.Database.Path = val
	}
	if val := os.Getenv("AREAS_DB_DSN"); val != "" {
		c.Database.DSN = val
	} else if val := os.Getenv("DATABASE_URL"); val != "" && c.Database.DSN == "" {
		c.Database.DSN = val
	}

	if val := os.Getenv("AREAS_SCHEDULER_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Scheduler.Workers = n
		}
	}
	if val := os.Getenv("AREAS_SCHEDULER_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Scheduler.Interval = d
		}
	}
	if val := os.Getenv("AREAS_TIMEZONE"); val != "" {
		c.Scheduler.Timezone = val
	}

	if val := os.Getenv("AREAS_NATS_URL"); val != "" {
		c.Events.URL = val
		c.Events.Enabled = true
	}

	if val := os.Getenv("AREAS_GITHUB_WEBHOOK_SECRET"); val != "" {
		c.Services.GitHub.WebhookSecret = val
	}
	if val := os.Getenv("AREAS_SMTP_HOST"); val != "" {
		c.Email.Host = val
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return &areaserrors.ConfigError{Key: "database.path", Reason: "required for sqlite driver"}
		}
	case "postgres":
		if c.Database.DSN == "" {
			return &areaserrors.ConfigError{Key: "database.dsn", Reason: "required for postgres driver"}
		}
	case "memory":
	default:
		return &areaserrors.ConfigError{
			Key:    "database.driver",
			Reason: fmt.Sprintf("unsupported driver %q (expected sqlite, postgres or memory)", c.Database.Driver),
		}
	}

	if c.Scheduler.Workers < 1 {
		return &areaserrors.ConfigError{Key: "scheduler.workers", Reason: "must be at least 1"}
	}
	if c.Scheduler.Interval < time.Second || c.Scheduler.LiveInterval < time.Second {
		return &areaserrors.ConfigError{Key: "scheduler.interval", Reason: "cadences must be at least 1s"}
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return &areaserrors.ConfigError{Key: "scheduler.timezone", Reason: "unknown location", Cause: err}
		}
	}
	if c.Events.Enabled && c.Events.URL == "" && !c.Events.Embedded {
		return &areaserrors.ConfigError{Key: "events.url", Reason: "required unless events.embedded is set"}
	}

	switch c.Telemetry.Traces.Exporter {
	case "", "console":
	case "otlp", "otlp_http":
		if c.Telemetry.Traces.Endpoint == "" {
			return &areaserrors.ConfigError{Key: "telemetry.traces.endpoint", Reason: "required for otlp exporters"}
		}
	default:
		return &areaserrors.ConfigError{
			Key:    "telemetry.traces.exporter",
			Reason: fmt.Sprintf("unsupported exporter %q (expected console, otlp or otlp_http)", c.Telemetry.Traces.Exporter),
		}
	}

	return nil
}

// Location returns the configured timer location, defaulting to time.Local.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) credentialFields() map[string]*string {
	return map[string]*string{
		"database.dsn":                   &c.Database.DSN,
		"events.url":                     &c.Events.URL,
		"email.password":                 &c.Email.Password,
		"services.github.webhook_secret": &c.Services.GitHub.WebhookSecret,
		"services.discord.bot_token":     &c.Services.Discord.BotToken,
		"services.google.client_secret":  &c.Services.Google.ClientSecret,
		"services.reddit.client_secret":  &c.Services.Reddit.ClientSecret,
		"services.spotify.client_secret": &c.Services.Spotify.ClientSecret,
		"services.twitch.client_secret":  &c.Services.Twitch.ClientSecret,
		"services.trello.api_key":        &c.Services.Trello.APIKey,
	}
}

// Credentials returns the non-empty credential values, for masking.
func (c *Config) Credentials() []string {
	var out []string
	for _, field := range c.credentialFields() {
		if *field != "" {
			out = append(out, *field)
		}
	}
	return out
}

// ResolveSecrets replaces secret references in credential fields with their
// values.
func (c *Config) ResolveSecrets(ctx context.Context, r *secrets.Resolver) error {
	for key, field := range c.credentialFields() {
		if !secrets.IsReference(*field) {
			continue
		}
		value, err := r.Resolve(ctx, *field)
		if err != nil {
			return &areaserrors.ConfigError{Key: key, Reason: "failed to resolve secret reference", Cause: err}
		}
		*field = value
	}
	return nil
}
