package orchestrator

import (
	"regexp"
	"strings"
	"sync"

	"github.com/siegecorps/siegebot/internal/models"
)

// Eligibility decides whether msg is addressed to the bot. Commands win over
// private chats, which win over mentions and replies. The bot never speaks unprompted.
func Eligibility(msg models.InboundMessage, bot models.BotIdentity, prefix string) models.EligibilityReason {
	text := strings.TrimSpace(msg.Text)

	if isCommandFor(text, bot.Username, prefix) {
		return models.EligibleCommand
	}
	if msg.ChatType == models.ChatPrivate {
		return models.EligiblePrivate
	}
	if mentions(text, bot.Username) {
		return models.EligibleMention
	}
	if bot.ID != 0 && msg.ReplyToSenderID != 0 {
		if msg.ReplyToSenderID == bot.ID {
			return models.EligibleReply
		}
	} else if msg.ReplyToIsBot {
		return models.EligibleReply
	}
	return models.EligibleNone
}

var mentionPatterns sync.Map

// mentions matches "@username" only as a whole handle, so "@bot2" is not "@bot"
func mentions(text, username string) bool {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return false
	}
	re, ok := mentionPatterns.Load(username)
	if !ok {
		re, _ = mentionPatterns.LoadOrStore(username, regexp.MustCompile(`(?i)@`+regexp.QuoteMeta(username)+`\b`))
	}
	return re.(*regexp.Regexp).MatchString(text)
}

// IsEligible reports whether the bot should act on msg
func IsEligible(msg models.InboundMessage, bot models.BotIdentity, prefix string) bool {
	return Eligibility(msg, bot, prefix) != models.EligibleNone
}

// ParseCommand splits "/name@bot args" into name and args
func ParseCommand(text, prefix string) (name, target, args string) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", ""
	}
	head, rest, _ := strings.Cut(text[len(prefix):], " ")
	name, target, _ = strings.Cut(head, "@")
	return strings.ToLower(name), target, strings.TrimSpace(rest)
}

func isCommandFor(text, username, prefix string) bool {
	name, target, _ := ParseCommand(text, prefix)
	if name == "" {
		return false
	}
	return target == "" || strings.EqualFold(target, strings.TrimPrefix(username, "@"))
}
