package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
bot:
  token: "123:abc"
generation:
  api_key: "sk-test"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "/", cfg.Bot.CommandPrefix)
	assert.Equal(t, 3, cfg.RateLimit.Chat.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Chat.Window)
	assert.Equal(t, 10, cfg.RateLimit.User.Max)
	assert.Equal(t, 10, cfg.Context.HistoryCapacity)
	assert.Equal(t, 5, cfg.Context.PromptTurns)
	assert.Equal(t, "America/New_York", cfg.Context.Timezone)
	assert.Equal(t, 8*time.Second, cfg.Lookups.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 1, cfg.Generation.MaxRetries)
	assert.Equal(t, "siege", cfg.Persona.Default)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 2000, cfg.Lookups.Web.MaxChars)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimal+`
rate_limit:
  chat:
    max: 5
    window: 30s
persona:
  default: harley
  mode: global
admin:
  known:
    - name: Tao
      title: Loremaster Wizard Cat Lover
      variations: [tao, wizard]
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.Chat.Max)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Chat.Window)
	assert.Equal(t, "harley", cfg.Persona.Default)
	assert.Equal(t, "global", cfg.Persona.Mode)
	require.Len(t, cfg.Admin.Known, 1)
	assert.Equal(t, []string{"tao", "wizard"}, cfg.Admin.Known[0].Variations)
}

func TestLoadConfigEnvToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")
	cfg, err := LoadConfig(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", "generation:\n  api_key: x\n"},
		{"unknown persona", minimal + "persona:\n  default: clippy\n"},
		{"too many retries", "bot:\n  token: x\ngeneration:\n  api_key: x\n  max_retries: 3\n"},
		{"redis without addr", minimal + "storage:\n  type: redis\n"},
		{"bad timezone", minimal + "context:\n  timezone: Mars/Olympus\n"},
		{"prompt turns above capacity", minimal + "context:\n  history_capacity: 3\n  prompt_turns: 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
