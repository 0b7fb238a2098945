package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	l := Default()
	assert.Equal(t, "Whoa there, speedster! You're sending messages faster than Elon's ego crashes. Chill for a minute.", l.T(MsgThrottled, nil))
	assert.Equal(t, "Persona switched to harley.", l.T(MsgPersonaSwitched, map[string]interface{}{"Persona": "harley"}))
	assert.Equal(t, "missing_id", l.T("missing_id", nil))
}

func TestOverridesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "de.json"),
		[]byte(`{"unknown_command": "Unbekannter Befehl."}`), 0o644))

	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "de"}, Directory: dir})
	require.NoError(t, err)

	assert.Equal(t, "Unbekannter Befehl.", l.Get("de", MsgUnknownCommand, nil))
	assert.Equal(t, "Unknown command. Try /help.", l.Get("en", MsgUnknownCommand, nil))
	// untranslated ids fall back to English
	assert.Equal(t, "Only admins can do that.", l.Get("de", MsgNotAuthorized, nil))
	assert.Equal(t, "Only admins can do that.", l.Get("fr", MsgNotAuthorized, nil))
}
