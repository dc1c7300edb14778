package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the worker process
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Driver    DriverConfig    `yaml:"driver"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Warmup    WarmupConfig    `yaml:"warmup"`
	AutoPause AutoPauseConfig `yaml:"auto_pause"`
	Mailing   MailingConfig   `yaml:"mailing"`
	SES       SESConfig       `yaml:"ses"`
	Verify    VerifyConfig    `yaml:"verification"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig configures the leader lock backend. An empty address means
// locks fall back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" or "console"
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact defaults to true when unset.
func (c LoggingConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// DriverConfig sets the base tick and how many ticks apart each periodic duty
// runs.
type DriverConfig struct {
	TickSeconds         int `yaml:"tick_seconds"`
	SchedulerEveryTicks int `yaml:"scheduler_every_ticks"`
	WarmupEveryTicks    int `yaml:"warmup_every_ticks"`
	AutoPauseEveryTicks int `yaml:"auto_pause_every_ticks"`
	RecoveryEveryTicks  int `yaml:"recovery_every_ticks"`
	LeaderLockSeconds   int `yaml:"leader_lock_seconds"`
	// Mode is "tasks" (one goroutine per duty) or "loop" (single tick loop).
	Mode string `yaml:"mode"`
}

func (c DriverConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// LeaderLockTTL is how long a leader duty's lease outlives the duty's own
// cadence. It bounds how long a dead leader blocks its peers.
func (c DriverConfig) LeaderLockTTL() time.Duration {
	return time.Duration(c.LeaderLockSeconds) * time.Second
}

type JobsConfig struct {
	BatchSize         int `yaml:"batch_size"`
	MaxRetries        int `yaml:"max_retries"`
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	StaleAfterMinutes int `yaml:"stale_after_minutes"`
}

func (c JobsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c JobsConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

type SchedulerConfig struct {
	LeadBatchSize  int     `yaml:"lead_batch_size"`
	MinHealthScore float64 `yaml:"min_health_score"`
	// Assignment is "greedy" or "round_robin".
	Assignment string `yaml:"assignment"`
}

type WarmupConfig struct {
	HealthRecoveryStep float64 `yaml:"health_recovery_step"`
	ResetWindowMinutes int     `yaml:"reset_window_minutes"`
}

func (c WarmupConfig) ResetWindow() time.Duration {
	return time.Duration(c.ResetWindowMinutes) * time.Minute
}

type AutoPauseConfig struct {
	MetricsWindowHours   int `yaml:"metrics_window_hours"`
	ReplyRateWindowHours int `yaml:"reply_rate_window_hours"`
}

// MailingConfig holds outbound mail settings shared by all senders.
type MailingConfig struct {
	AppURL            string  `yaml:"app_url"`
	SendRatePerSecond float64 `yaml:"send_rate_per_second"`
	SMTPTimeoutSecs   int     `yaml:"smtp_timeout_seconds"`
	EncryptionKey     string  `yaml:"encryption_key"` // base64, 32 bytes
	EncryptionKeyID   string  `yaml:"encryption_key_id"`
}

func (c MailingConfig) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSecs) * time.Second
}

type SESConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type VerifyConfig struct {
	MXTimeoutSeconds int      `yaml:"mx_timeout_seconds"`
	ExtraDisposable  []string `yaml:"extra_disposable_domains"`
}

func (c VerifyConfig) MXTimeout() time.Duration {
	return time.Duration(c.MXTimeoutSeconds) * time.Second
}

// Load reads a YAML file and applies defaults. A missing file is not an
// error: defaults plus environment overrides are a valid configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Driver.TickSeconds == 0 {
		cfg.Driver.TickSeconds = 5
	}
	if cfg.Driver.SchedulerEveryTicks == 0 {
		cfg.Driver.SchedulerEveryTicks = 10
	}
	if cfg.Driver.WarmupEveryTicks == 0 {
		cfg.Driver.WarmupEveryTicks = 60
	}
	if cfg.Driver.AutoPauseEveryTicks == 0 {
		cfg.Driver.AutoPauseEveryTicks = 4320
	}
	if cfg.Driver.RecoveryEveryTicks == 0 {
		cfg.Driver.RecoveryEveryTicks = 12
	}
	if cfg.Driver.LeaderLockSeconds == 0 {
		cfg.Driver.LeaderLockSeconds = 300
	}
	if cfg.Driver.Mode == "" {
		cfg.Driver.Mode = "tasks"
	}
	if cfg.Jobs.BatchSize == 0 {
		cfg.Jobs.BatchSize = 10
	}
	if cfg.Jobs.MaxRetries == 0 {
		cfg.Jobs.MaxRetries = 3
	}
	if cfg.Jobs.TimeoutSeconds == 0 {
		cfg.Jobs.TimeoutSeconds = 120
	}
	if cfg.Jobs.StaleAfterMinutes == 0 {
		cfg.Jobs.StaleAfterMinutes = 15
	}
	if cfg.Scheduler.LeadBatchSize == 0 {
		cfg.Scheduler.LeadBatchSize = 100
	}
	if cfg.Scheduler.MinHealthScore == 0 {
		cfg.Scheduler.MinHealthScore = 50
	}
	if cfg.Scheduler.Assignment == "" {
		cfg.Scheduler.Assignment = "greedy"
	}
	if cfg.Warmup.ResetWindowMinutes == 0 {
		cfg.Warmup.ResetWindowMinutes = 5
	}
	if cfg.AutoPause.MetricsWindowHours == 0 {
		cfg.AutoPause.MetricsWindowHours = 24
	}
	if cfg.AutoPause.ReplyRateWindowHours == 0 {
		cfg.AutoPause.ReplyRateWindowHours = 48
	}
	if cfg.Mailing.AppURL == "" {
		cfg.Mailing.AppURL = "https://app.outreachiq.com"
	}
	if cfg.Mailing.SendRatePerSecond == 0 {
		cfg.Mailing.SendRatePerSecond = 5
	}
	if cfg.Mailing.SMTPTimeoutSecs == 0 {
		cfg.Mailing.SMTPTimeoutSecs = 30
	}
	if cfg.Mailing.EncryptionKeyID == "" {
		cfg.Mailing.EncryptionKeyID = "default-key-v1"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Verify.MXTimeoutSeconds == 0 {
		cfg.Verify.MXTimeoutSeconds = 5
	}
}

// LoadFromEnv loads .env (if present), the YAML file, then environment
// overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APP_URL"); v != "" {
		cfg.Mailing.AppURL = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Mailing.EncryptionKey = v
	}
	if v := os.Getenv("ENCRYPTION_KEY_ID"); v != "" {
		cfg.Mailing.EncryptionKeyID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}

	return cfg, nil
}

// Validate reports configuration that would make the worker unable to run.
// Any error here is fatal at startup.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database url is required (DATABASE_URL)"))
	}
	switch cfg.Scheduler.Assignment {
	case "greedy", "round_robin":
	default:
		errs = append(errs, fmt.Errorf("scheduler.assignment %q must be greedy or round_robin", cfg.Scheduler.Assignment))
	}
	switch cfg.Driver.Mode {
	case "tasks", "loop":
	default:
		errs = append(errs, fmt.Errorf("driver.mode %q must be tasks or loop", cfg.Driver.Mode))
	}
	if cfg.Mailing.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Mailing.EncryptionKey)
		if err != nil || len(key) != 32 {
			errs = append(errs, errors.New("encryption key must be 32 bytes, base64 encoded"))
		}
	}
	if cfg.SES.Enabled && (cfg.SES.AccessKey == "") != (cfg.SES.SecretKey == "") {
		errs = append(errs, errors.New("ses access key and secret key must be set together"))
	}
	return errors.Join(errs...)
}
