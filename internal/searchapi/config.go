package searchapi

import (
	"time"

	"hostintel-bot/internal/common/config"
)

type Config struct {
	BaseURL         string
	ExploitsURL     string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	FetchLimit      int
	AccountCacheTTL time.Duration
}

// NewConfig derives the adapter settings from the application config.
// FetchLimit is the number of matches kept per search: one page of the
// chat view times the page cap.
func NewConfig(cfg *config.Config) *Config {
	api := cfg.SearchAPI
	return &Config{
		BaseURL:         api.BaseURL,
		ExploitsURL:     api.ExploitsURL,
		APIKey:          api.APIKey,
		Timeout:         config.GetDuration(api.Timeout),
		MaxRetries:      api.MaxRetries,
		RetryDelay:      500 * time.Millisecond,
		FetchLimit:      api.PageSize * api.MaxPages,
		AccountCacheTTL: config.GetDuration(api.AccountCacheTTL),
	}
}
