package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// BotAPI is the part of the Telegram client the transport uses
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
}

// Submitter receives inbound messages in the order they arrive
type Submitter interface {
	Submit(msg models.InboundMessage) bool
}

// Telegram adapts the Bot API to the orchestrator transport and the admin snapshot source
type Telegram struct {
	api    BotAPI
	self   models.BotIdentity
	logger *logrus.Logger
	now    func() time.Time
}

// NewTelegram creates the transport for the authorized bot account
func NewTelegram(api BotAPI, self tgbotapi.User, logger *logrus.Logger) *Telegram {
	return &Telegram{
		api:    api,
		self:   models.BotIdentity{ID: self.ID, Username: self.UserName},
		logger: logger,
		now:    time.Now,
	}
}

// Identity returns the bot account
func (t *Telegram) Identity() models.BotIdentity { return t.self }

// ToInbound converts a Telegram message. Non-text messages are skipped.
func ToInbound(msg *tgbotapi.Message, receivedAt time.Time) (models.InboundMessage, bool) {
	if msg == nil || msg.From == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return models.InboundMessage{}, false
	}

	in := models.InboundMessage{
		ChatID:         msg.Chat.ID,
		ChatType:       models.ChatGroup,
		MessageID:      msg.MessageID,
		SenderID:       msg.From.ID,
		SenderUsername: msg.From.UserName,
		SenderName:     msg.From.FirstName,
		Text:           msg.Text,
		ReceivedAt:     receivedAt,
	}
	if msg.Chat.IsPrivate() {
		in.ChatType = models.ChatPrivate
	}
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
		in.ReplyToSenderID = reply.From.ID
		in.ReplyToIsBot = reply.From.IsBot
	}
	return in, true
}

// Run feeds updates to sink until ctx ends or the channel closes
func (t *Telegram) Run(ctx context.Context, updates <-chan tgbotapi.Update, sink Submitter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := ToInbound(update.Message, t.now())
			if !ok || msg.SenderID == t.self.ID {
				continue
			}
			sink.Submit(msg)
		}
	}
}

// Send delivers a reply as HTML, falling back to plain text when Telegram
// rejects the markup
func (t *Telegram) Send(ctx context.Context, reply models.OutboundReply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(reply.ChatID, markdown.ToHTML(reply.Text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = reply.ReplyToMessageID
	msg.AllowSendingWithoutReply = true

	_, err := t.api.Send(msg)
	if err == nil {
		return nil
	}
	if err := translate(err); errors.Is(err, models.ErrUndeliverable) {
		return err
	}

	t.logger.WithError(err).WithField("chat_id", reply.ChatID).Debug("HTML send failed, retrying as plain text")
	msg.Text = markdown.ToPlain(reply.Text)
	if msg.Text == "" {
		msg.Text = reply.Text
	}
	msg.ParseMode = ""
	if _, err := t.api.Send(msg); err != nil {
		return translate(err)
	}
	return nil
}

// Typing shows the typing indicator
func (t *Telegram) Typing(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return translate(err)
}

// ChatAdministrators lists the user IDs of a group's administrators
func (t *Telegram) ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members, err := t.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, translate(err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

var goneMarkers = []string{
	"chat not found",
	"bot was kicked",
	"bot was blocked",
	"group chat was deactivated",
	"have no rights to send",
	"not enough rights to send",
}

// translate maps Bot API errors for conversations the bot can no longer
// reach to models.ErrUndeliverable
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", models.ErrUndeliverable, apiErr.Message)
	}
	if apiErr.Code == http.StatusBadRequest {
		text := strings.ToLower(apiErr.Message)
		for _, marker := range goneMarkers {
			if strings.Contains(text, marker) {
				return fmt.Errorf("%w: %s", models.ErrUndeliverable, apiErr.Message)
			}
		}
	}
	return err
}

// WebhookHandler parses webhook posts from Telegram into out
func WebhookHandler(parse func(*http.Request) (*tgbotapi.Update, error), out chan<- tgbotapi.Update, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := parse(r)
		if err != nil {
			logger.WithError(err).Warn("Rejected webhook update")
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		select {
		case out <- *update:
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}
