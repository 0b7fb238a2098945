package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	sendErrs []error
	reqErr   error
	admins   []tgbotapi.ChatMember
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: f.reqErr == nil}, f.reqErr
}

func (f *fakeAPI) GetChatAdministrators(tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	return f.admins, nil
}

type collector struct {
	mu   sync.Mutex
	msgs []models.InboundMessage
}

func (c *collector) Submit(msg models.InboundMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return true
}

var self = tgbotapi.User{ID: 42, IsBot: true, UserName: "Siege_Chat_Bot"}

func newTransport(api *fakeAPI) *Telegram {
	log, _ := test.NewNullLogger()
	return NewTelegram(api, self, log)
}

func TestToInbound(t *testing.T) {
	now := time.Now()
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 7, UserName: "dieseljack", FirstName: "Diesel"},
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		Text:      "@Siege_Chat_Bot hi",
		ReplyToMessage: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42, IsBot: true},
		},
	}

	in, ok := ToInbound(msg, now)
	require.True(t, ok)
	assert.Equal(t, models.InboundMessage{
		ChatID:          -100,
		ChatType:        models.ChatGroup,
		MessageID:       10,
		SenderID:        7,
		SenderUsername:  "dieseljack",
		SenderName:      "Diesel",
		Text:            "@Siege_Chat_Bot hi",
		ReplyToSenderID: 42,
		ReplyToIsBot:    true,
		ReceivedAt:      now,
	}, in)

	msg.Chat.Type = "private"
	in, _ = ToInbound(msg, now)
	assert.Equal(t, models.ChatPrivate, in.ChatType)

	msg.Text = " "
	_, ok = ToInbound(msg, now)
	assert.False(t, ok, "non-text messages are skipped")

	_, ok = ToInbound(nil, now)
	assert.False(t, ok)
}

func TestSendRendersHTML(t *testing.T) {
	api := &fakeAPI{}
	tr := newTransport(api)

	require.NoError(t, tr.Send(context.Background(), models.OutboundReply{ChatID: 5, Text: "**based**", ReplyToMessageID: 3}))

	require.Len(t, api.sent, 1)
	assert.Equal(t, "<b>based</b>", api.sent[0].Text)
	assert.Equal(t, tgbotapi.ModeHTML, api.sent[0].ParseMode)
	assert.Equal(t, 3, api.sent[0].ReplyToMessageID)
}

func TestSendFallsBackToPlainText(t *testing.T) {
	api := &fakeAPI{sendErrs: []error{&tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"}}}
	tr := newTransport(api)

	require.NoError(t, tr.Send(context.Background(), models.OutboundReply{ChatID: 5, Text: "**based** & true"}))

	require.Len(t, api.sent, 2)
	assert.Equal(t, "based & true", api.sent[1].Text)
	assert.Empty(t, api.sent[1].ParseMode)
}

func TestUndeliverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		gone bool
	}{
		{"blocked", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, true},
		{"kicked", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, true},
		{"rate limited", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, false},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{sendErrs: []error{tt.err, tt.err}, reqErr: tt.err}
			tr := newTransport(api)

			err := tr.Send(context.Background(), models.OutboundReply{ChatID: 5, Text: "hi"})
			assert.Equal(t, tt.gone, errors.Is(err, models.ErrUndeliverable))
			if tt.gone {
				assert.Len(t, api.sent, 1, "no plain retry for a gone chat")
			}

			err = tr.Typing(context.Background(), 5)
			assert.Equal(t, tt.gone, errors.Is(err, models.ErrUndeliverable))
		})
	}
}

func TestChatAdministrators(t *testing.T) {
	api := &fakeAPI{admins: []tgbotapi.ChatMember{{User: &tgbotapi.User{ID: 1}}, {User: &tgbotapi.User{ID: 2}}, {}}}
	tr := newTransport(api)

	ids, err := tr.ChatAdministrators(context.Background(), -100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestRunSkipsOwnMessages(t *testing.T) {
	tr := newTransport(&fakeAPI{})
	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &self, Chat: &tgbotapi.Chat{ID: 1, Type: "private"}, Text: "echo"}}
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 7}, Chat: &tgbotapi.Chat{ID: 7, Type: "private"}, Text: "hi"}}
	updates <- tgbotapi.Update{}
	close(updates)

	sink := &collector{}
	require.NoError(t, tr.Run(context.Background(), updates, sink))
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, int64(7), sink.msgs[0].SenderID)
	assert.Equal(t, models.BotIdentity{ID: 42, Username: "Siege_Chat_Bot"}, tr.Identity())
}

func TestWebhookHandler(t *testing.T) {
	log, _ := test.NewNullLogger()
	out := make(chan tgbotapi.Update, 1)
	parse := func(r *http.Request) (*tgbotapi.Update, error) {
		if r.Method != http.MethodPost {
			return nil, errors.New("wrong method")
		}
		return &tgbotapi.Update{UpdateID: 9}, nil
	}
	h := WebhookHandler(parse, out, log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, (<-out).UpdateID)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/hook", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
