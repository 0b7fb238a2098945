package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/i18n"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/persona"
)

// runCommand answers a bot command and ends in SENT, FAILED or DISCARDED
func (o *Orchestrator) runCommand(ctx context.Context, msg models.InboundMessage, out *Outcome, p persona.Persona) {
	name, _, args := ParseCommand(msg.Text, o.opts.CommandPrefix)
	out.Command = name
	if o.Metrics != nil {
		o.Metrics.RecordCommandExecuted(name)
	}

	var text string
	switch name {
	case "start":
		text = p.StartMessage()
	case "help":
		text = p.HelpMessage()
	case "persona":
		text = o.handlePersona(ctx, msg, args, p)
		out.Persona = o.Personas.Active(ctx, msg.ChatID).Name()
	case "reset":
		text = o.handleReset(ctx, msg)
	case "stats":
		text = o.handleStats(ctx, msg)
	default:
		text = o.Localizer.T(i18n.MsgUnknownCommand, nil)
	}
	out.Reply = text

	if err := o.send(ctx, msg, text); err != nil {
		out.Err = err
		if errors.Is(err, models.ErrUndeliverable) {
			o.finish(msg, out, StateDiscarded)
			return
		}
		o.Logger.WithError(err).WithField("command", name).Error("Failed to send command reply")
		o.finish(msg, out, StateFailed)
		return
	}
	o.finish(msg, out, StateSent)
}

func (o *Orchestrator) handlePersona(ctx context.Context, msg models.InboundMessage, args string, current persona.Persona) string {
	available := strings.Join(persona.Names(), ", ")
	choice := strings.ToLower(strings.TrimSpace(args))
	if choice == "" {
		return o.Localizer.T(i18n.MsgPersonaCurrent, map[string]interface{}{
			"Persona":  current.Name(),
			"Personas": available,
		})
	}
	if !o.authorized(ctx, msg) {
		return o.Localizer.T(i18n.MsgNotAuthorized, nil)
	}

	next, err := o.Personas.Set(ctx, msg.ChatID, choice)
	switch {
	case errors.Is(err, models.ErrUnknownPersona):
		return o.Localizer.T(i18n.MsgPersonaInvalid, map[string]interface{}{"Personas": available})
	case err != nil:
		o.Logger.WithError(err).WithField("chat_id", msg.ChatID).Error("Failed to switch persona")
		return current.FallbackMessage()
	}
	return o.Localizer.T(i18n.MsgPersonaSwitched, map[string]interface{}{"Persona": next.Name()})
}

// authorized reports whether the sender may change bot settings.
// Private chats are the sender's own settings.
func (o *Orchestrator) authorized(ctx context.Context, msg models.InboundMessage) bool {
	if o.operators[msg.SenderID] || msg.ChatType == models.ChatPrivate {
		return true
	}
	if o.Admin == nil {
		return false
	}
	status := o.Admin.Status(ctx, msg)
	return status.IsAdmin || status.ChatAdmin
}

func (o *Orchestrator) handleReset(ctx context.Context, msg models.InboundMessage) string {
	if err := o.Store.ClearHistory(ctx, msg.SenderID); err != nil {
		o.Logger.WithError(err).WithField("user_id", msg.SenderID).Error("Failed to clear history")
		return o.Personas.Active(ctx, msg.ChatID).FallbackMessage()
	}
	return o.Localizer.T(i18n.MsgHistoryCleared, nil)
}

func (o *Orchestrator) handleStats(ctx context.Context, msg models.InboundMessage) string {
	stats, err := o.Store.GetUserStats(ctx, msg.SenderID)
	if err != nil || stats == nil {
		stats = &models.UserStats{UserID: msg.SenderID}
	}
	last := "never"
	if !stats.LastActive.IsZero() {
		last = stats.LastActive.UTC().Format(time.RFC1123)
	}
	return o.Localizer.T(i18n.MsgStats, map[string]interface{}{
		"Messages":   stats.TotalMessages,
		"Replies":    stats.TotalReplies,
		"LastActive": last,
	})
}
