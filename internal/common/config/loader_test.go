package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "bot-token"
search_api:
  api_key: "key"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.BaseURL)
	assert.Equal(t, "https://api.shodan.io", cfg.SearchAPI.BaseURL)
	assert.Equal(t, 5, cfg.SearchAPI.PageSize)
	assert.Equal(t, 10, cfg.SearchAPI.MaxPages)
	assert.Equal(t, "org:10,port:10,country:10", cfg.SearchAPI.CountFacets)
	assert.Equal(t, DedupMemory, cfg.Session.DedupBackend)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "expanded-token")
	path := writeConfig(t, `
telegram:
  token: "${TEST_BOT_TOKEN}"
search_api:
  api_key: "key"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-token", cfg.Telegram.Token)
}

func TestLoadFromFile_ShortEnvNames(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("SHODAN_API_KEY", "shodan")
	t.Setenv("AUTHORIZED_USERS", "111, 222,,333")
	path := writeConfig(t, "app:\n  name: test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, "shodan", cfg.SearchAPI.APIKey)
	assert.Equal(t, []int64{111, 222, 333}, cfg.Access.AuthorizedUsers)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing token",
			body:    "search_api:\n  api_key: k\n",
			wantErr: "telegram.token is required",
		},
		{
			name:    "webhook without url",
			body:    "telegram:\n  token: t\n  mode: webhook\nsearch_api:\n  api_key: k\n",
			wantErr: "telegram.webhook_url is required",
		},
		{
			name:    "unknown mode",
			body:    "telegram:\n  token: t\n  mode: carrier-pigeon\nsearch_api:\n  api_key: k\n",
			wantErr: "telegram.mode must be",
		},
		{
			name:    "redis dedup without redis",
			body:    "telegram:\n  token: t\nsearch_api:\n  api_key: k\nsession:\n  dedup_backend: redis\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "database allow-list without postgres",
			body:    "telegram:\n  token: t\nsearch_api:\n  api_key: k\naccess:\n  load_from_database: true\n",
			wantErr: "database.postgres.host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_BOT_TOKEN", "")
			t.Setenv("SHODAN_API_KEY", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseUserIDs(t *testing.T) {
	ids, err := ParseUserIDs(" 1,2 , ,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = ParseUserIDs("1,abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "bot", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=bot sslmode=disable", p.GetDSN())
	assert.True(t, p.Enabled())
	assert.False(t, PostgresConfig{}.Enabled())
}
