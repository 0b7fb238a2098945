package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/siegecorps/siegebot/internal/config"
	"golang.org/x/text/language"
)

// Message IDs
const (
	MsgThrottled       = "throttled"
	MsgPersonaSwitched = "persona_switched"
	MsgPersonaInvalid  = "persona_invalid"
	MsgPersonaCurrent  = "persona_current"
	MsgNotAuthorized   = "not_authorized"
	MsgUnknownCommand  = "unknown_command"
	MsgHistoryCleared  = "history_cleared"
	MsgStats           = "stats"
)

// defaults are always registered for English; files under the i18n directory override them
var defaults = []*i18n.Message{
	{ID: MsgThrottled, Other: "Whoa there, speedster! You're sending messages faster than Elon's ego crashes. Chill for a minute."},
	{ID: MsgPersonaSwitched, Other: "Persona switched to {{.Persona}}."},
	{ID: MsgPersonaInvalid, Other: "Invalid choice. Available personas: {{.Personas}}."},
	{ID: MsgPersonaCurrent, Other: "Current persona: {{.Persona}}. Available: {{.Personas}}."},
	{ID: MsgNotAuthorized, Other: "Only admins can do that."},
	{ID: MsgUnknownCommand, Other: "Unknown command. Try /help."},
	{ID: MsgHistoryCleared, Other: "Conversation history cleared."},
	{ID: MsgStats, Other: "Messages: {{.Messages}}\nReplies: {{.Replies}}\nLast active: {{.LastActive}}"},
}

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a localizer with embedded English strings and any
// <lang>.json files found in cfg.Directory
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	if err := bundle.AddMessages(language.English, defaults...); err != nil {
		return nil, fmt.Errorf("failed to register default messages: %w", err)
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{cfg.DefaultLanguage}
	}

	if cfg.Directory != "" {
		for _, lang := range languages {
			path := filepath.Join(cfg.Directory, lang+".json")
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if _, err := bundle.LoadMessageFile(path); err != nil {
				return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
			}
		}
	}

	localizers := make(map[string]*i18n.Localizer, len(languages)+1)
	for _, lang := range languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, "en")
	}
	if _, ok := localizers[cfg.DefaultLanguage]; !ok {
		localizers[cfg.DefaultLanguage] = i18n.NewLocalizer(bundle, cfg.DefaultLanguage, "en")
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Default returns a localizer with only the embedded English strings
func Default() *Localizer {
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en"})
	if err != nil {
		panic(err)
	}
	return l
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	// a missing translation still yields the default-language text alongside the error
	if err != nil && msg == "" {
		return messageID
	}

	return msg
}

// T localizes in the default language
func (l *Localizer) T(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}
