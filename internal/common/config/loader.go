package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	DedupMemory = "memory"
	DedupRedis  = "redis"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := overrideEmptyConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honors the short variable names operators already use
// for the bot (TELEGRAM_BOT_TOKEN, SHODAN_API_KEY, AUTHORIZED_USERS, ...).
func overrideEmptyConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		if val := os.Getenv("TELEGRAM_BOT_TOKEN"); val != "" {
			cfg.Telegram.Token = val
		}
	}
	if cfg.Telegram.WebhookSecret == "" {
		if val := os.Getenv("WEBHOOK_SECRET"); val != "" {
			cfg.Telegram.WebhookSecret = val
		}
	}
	if cfg.Telegram.WebhookURL == "" {
		if val := os.Getenv("WEBHOOK_URL"); val != "" {
			cfg.Telegram.WebhookURL = val
		}
	}
	if cfg.SearchAPI.APIKey == "" {
		if val := os.Getenv("SHODAN_API_KEY"); val != "" {
			cfg.SearchAPI.APIKey = val
		}
	}
	if len(cfg.Access.AuthorizedUsers) == 0 {
		if val := os.Getenv("AUTHORIZED_USERS"); val != "" {
			ids, err := ParseUserIDs(val)
			if err != nil {
				return err
			}
			cfg.Access.AuthorizedUsers = ids
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	return nil
}

// ParseUserIDs parses a comma separated list of numeric user ids.
// Blank entries are skipped.
func ParseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("authorized user id %q is not numeric", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "hostintel-bot"
	}

	// Telegram defaults
	if cfg.Telegram.BaseURL == "" {
		cfg.Telegram.BaseURL = "https://api.telegram.org"
	}
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = ModePolling
	}
	if cfg.Telegram.WebhookPath == "" {
		cfg.Telegram.WebhookPath = "/webhook"
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}
	if cfg.Telegram.RequestTimeout == 0 {
		cfg.Telegram.RequestTimeout = 40000
	}
	if cfg.Telegram.QueueSize == 0 {
		cfg.Telegram.QueueSize = 16
	}

	// Search API defaults
	if cfg.SearchAPI.BaseURL == "" {
		cfg.SearchAPI.BaseURL = "https://api.shodan.io"
	}
	if cfg.SearchAPI.ExploitsURL == "" {
		cfg.SearchAPI.ExploitsURL = "https://exploits.shodan.io"
	}
	if cfg.SearchAPI.Timeout == 0 {
		cfg.SearchAPI.Timeout = 30000
	}
	if cfg.SearchAPI.MaxRetries == 0 {
		cfg.SearchAPI.MaxRetries = 3
	}
	if cfg.SearchAPI.PageSize == 0 {
		cfg.SearchAPI.PageSize = 5
	}
	if cfg.SearchAPI.MaxPages == 0 {
		cfg.SearchAPI.MaxPages = 10
	}
	if cfg.SearchAPI.CountFacets == "" {
		cfg.SearchAPI.CountFacets = "org:10,port:10,country:10"
	}
	if cfg.SearchAPI.AccountCacheTTL == 0 {
		cfg.SearchAPI.AccountCacheTTL = 300000
	}

	// Session defaults
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 1800000
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 60000
	}
	if cfg.Session.DedupWindow == 0 {
		cfg.Session.DedupWindow = 600000
	}
	if cfg.Session.DedupBackend == "" {
		cfg.Session.DedupBackend = DedupMemory
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Observability.Tracing.SampleRatio == 0 {
		cfg.Observability.Tracing.SampleRatio = 1.0
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.SearchAPI.APIKey == "" {
		return fmt.Errorf("search_api.api_key is required")
	}

	switch cfg.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if cfg.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.mode must be %q or %q, got %q", ModePolling, ModeWebhook, cfg.Telegram.Mode)
	}

	if cfg.SearchAPI.PageSize < 1 {
		return fmt.Errorf("search_api.page_size must be positive")
	}
	if cfg.SearchAPI.MaxPages < 1 {
		return fmt.Errorf("search_api.max_pages must be positive")
	}

	switch cfg.Session.DedupBackend {
	case DedupMemory:
	case DedupRedis:
		if !cfg.Database.Redis.Enabled() {
			return fmt.Errorf("database.redis.address is required when session.dedup_backend is redis")
		}
	default:
		return fmt.Errorf("session.dedup_backend must be %q or %q", DedupMemory, DedupRedis)
	}

	if cfg.Access.LoadFromDatabase {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when access.load_from_database is set")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("observability.tracing.jaeger_endpoint is required when tracing is enabled")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
