package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Scan      ScanConfig      `yaml:"scan"`
	Trash     TrashConfig     `yaml:"trash"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port        int      `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type" validate:"oneof=mysql postgres memory"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// MailboxConfig contains IMAP settings
type MailboxConfig struct {
	Host                string `yaml:"host"`
	User                string `yaml:"user"`
	Password            string `yaml:"password"`
	Folder              string `yaml:"folder"`
	AttachmentsDir      string `yaml:"attachments_dir"`
	BreakerThreshold    int    `yaml:"breaker_threshold" validate:"min=1"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds" validate:"min=1"`
}

// Configured reports whether IMAP credentials are present
func (c *MailboxConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

// ScanConfig contains scan loop settings
type ScanConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds" validate:"min=1"`
	GraceSeconds    int  `yaml:"grace_seconds" validate:"min=0"`
	AutoStart       bool `yaml:"auto_start"`
}

// TrashConfig contains soft-delete retention settings
type TrashConfig struct {
	RetentionDays int    `yaml:"retention_days" validate:"min=1"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// RateLimitConfig limits manual scan requests
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"min=0"`
	RequestsPerHour   int  `yaml:"requests_per_hour" validate:"min=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        5000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Type: "mysql",
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "erp_user",
				Database: "erp_db",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "erp_user",
				Database: "erp_db",
				SSLMode:  "disable",
			},
		},
		Mailbox: MailboxConfig{
			Host:                "imap.gmail.com:993",
			Folder:              "INBOX",
			AttachmentsDir:      "attachments",
			BreakerThreshold:    3,
			BreakerResetSeconds: 60,
		},
		Scan: ScanConfig{
			IntervalSeconds: 10,
			GraceSeconds:    2,
		},
		Trash: TrashConfig{
			RetentionDays: 30,
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Host:  "http://localhost:7700",
				Index: "orders",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 6,
			RequestsPerHour:   120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig loads configuration from a YAML file, then applies .env and
// environment overrides. A missing file yields the defaults. envFiles
// defaults to ".env" in the working directory.
func LoadConfig(filepath string, envFiles ...string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filepath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional; variables already set in the environment win
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides file values with environment variables
func (c *Config) ApplyEnv() {
	setString(&c.Database.Type, "DB_TYPE")
	switch c.Database.Type {
	case "postgres":
		setString(&c.Database.Postgres.Host, "DB_HOST")
		setInt(&c.Database.Postgres.Port, "DB_PORT")
		setString(&c.Database.Postgres.User, "DB_USER")
		setString(&c.Database.Postgres.Password, "DB_PASSWORD")
		setString(&c.Database.Postgres.Database, "DB_NAME")
	default:
		setString(&c.Database.MySQL.Host, "DB_HOST")
		setInt(&c.Database.MySQL.Port, "DB_PORT")
		setString(&c.Database.MySQL.User, "DB_USER")
		setString(&c.Database.MySQL.Password, "DB_PASSWORD")
		setString(&c.Database.MySQL.Database, "DB_NAME")
	}

	setString(&c.Mailbox.Host, "IMAP_HOST")
	setString(&c.Mailbox.User, "IMAP_USER")
	setString(&c.Mailbox.Password, "IMAP_PASSWORD")
	setString(&c.Mailbox.Folder, "IMAP_FOLDER")
	setString(&c.Mailbox.AttachmentsDir, "ATTACHMENTS_DIR")

	setInt(&c.Scan.IntervalSeconds, "SCAN_INTERVAL_SECONDS")
	setString(&c.Trash.SweepSchedule, "TRASH_SWEEP_SCHEDULE")

	setString(&c.Search.Meilisearch.Host, "MEILISEARCH_HOST")
	setString(&c.Search.Meilisearch.APIKey, "MEILISEARCH_KEY")
	setBool(&c.Search.Enabled, "SEARCH_ENABLED")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.File, "LOG_FILE")
	setInt(&c.Server.Port, "PORT")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Search.Enabled && c.Search.Meilisearch.Host == "" {
		return errors.New("invalid configuration: search.meilisearch.host is required when search is enabled")
	}
	return nil
}

// GetInterval returns the scan interval as a duration
func (c *ScanConfig) GetInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// GetGrace returns the processing grace window as a duration
func (c *ScanConfig) GetGrace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// GetBreakerReset returns the circuit breaker reset timeout
func (c *MailboxConfig) GetBreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
