// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	SearchAPI     SearchAPIConfig     `mapstructure:"search_api"`
	Access        AccessConfig        `mapstructure:"access"`
	Session       SessionConfig       `mapstructure:"session"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig holds Bot API credentials and the update delivery mode.
type TelegramConfig struct {
	Token          string `mapstructure:"token"`
	BaseURL        string `mapstructure:"base_url"`
	Mode           string `mapstructure:"mode"` // polling | webhook
	WebhookURL     string `mapstructure:"webhook_url"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	WebhookPath    string `mapstructure:"webhook_path"`
	PollTimeout    int    `mapstructure:"poll_timeout"`    // seconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	QueueSize      int    `mapstructure:"queue_size"`
}

// SearchAPIConfig holds settings for the host-intelligence search API.
type SearchAPIConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	ExploitsURL     string `mapstructure:"exploits_url"`
	APIKey          string `mapstructure:"api_key"`
	Timeout         int    `mapstructure:"timeout"` // milliseconds
	MaxRetries      int    `mapstructure:"max_retries"`
	PageSize        int    `mapstructure:"page_size"`
	MaxPages        int    `mapstructure:"max_pages"`
	DefaultFacets   string `mapstructure:"default_facets"`
	CountFacets     string `mapstructure:"count_facets"`
	AccountCacheTTL int    `mapstructure:"account_cache_ttl"` // milliseconds
}

// AccessConfig holds the allow-list.
type AccessConfig struct {
	AuthorizedUsers  []int64 `mapstructure:"authorized_users"`
	LoadFromDatabase bool    `mapstructure:"load_from_database"`
}

// SessionConfig controls in-memory session lifetime and update de-duplication.
type SessionConfig struct {
	IdleTTL         int    `mapstructure:"idle_ttl"`         // milliseconds
	CleanupInterval int    `mapstructure:"cleanup_interval"` // milliseconds
	DedupWindow     int    `mapstructure:"dedup_window"`     // milliseconds
	DedupBackend    string `mapstructure:"dedup_backend"`    // memory | redis
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a Postgres host was configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	Tracing        TracingConfig `mapstructure:"tracing"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
