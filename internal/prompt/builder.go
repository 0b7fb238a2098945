// Package prompt renders a persona and a response context into the single
// generation request sent for a message. Rendering is deterministic.
package prompt

import (
	"fmt"
	"strings"

	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/persona"
)

const (
	// MaxSummaryChars bounds encyclopedic payloads
	MaxSummaryChars = 600
	// MaxPageChars bounds extracted page payloads
	MaxPageChars = 1500

	DefaultShortTokens = 80
	DefaultLongTokens  = 150
	DefaultTurns       = 5
)

// Builder turns a response context into a generation request
type Builder interface {
	Build(p persona.Persona, rc *models.ResponseContext) models.GenerationRequest
}

// Options are the token and history budgets
type Options struct {
	ShortTokens int
	LongTokens  int
	Turns       int
}

// PromptBuilder is the default Builder
type PromptBuilder struct {
	opts Options
}

// NewBuilder fills zero options with defaults
func NewBuilder(opts Options) *PromptBuilder {
	if opts.ShortTokens <= 0 {
		opts.ShortTokens = DefaultShortTokens
	}
	if opts.LongTokens <= 0 {
		opts.LongTokens = DefaultLongTokens
	}
	if opts.Turns <= 0 || opts.Turns > DefaultTurns {
		opts.Turns = DefaultTurns
	}
	return &PromptBuilder{opts: opts}
}

// Build renders voice, user, authoritative information, history, length budget and message, in that order
func (b *PromptBuilder) Build(p persona.Persona, rc *models.ResponseContext) models.GenerationRequest {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(p.Voice))
	sb.WriteString("\n\n")

	writeUser(&sb, rc)

	if info := Authoritative(rc.Intent); info != "" {
		sb.WriteString("AUTHORITATIVE INFORMATION (state it exactly, do not contradict or recompute it):\n")
		sb.WriteString(info)
		sb.WriteString("\n\n")
	}

	writeHistory(&sb, rc.History, b.opts.Turns)

	maxTokens := b.opts.ShortTokens
	if rc.Complex {
		maxTokens = b.opts.LongTokens
		sb.WriteString("Answer in 3-4 sentences with concrete details.\n\n")
	} else {
		sb.WriteString("Answer in 1-2 sentences.\n\n")
	}

	fmt.Fprintf(&sb, "User: %s\n%s:", rc.CleanText, p.DisplayName)

	return models.GenerationRequest{
		Prompt:      sb.String(),
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
		Stop:        append([]string(nil), p.Stop...),
	}
}

func writeUser(sb *strings.Builder, rc *models.ResponseContext) {
	prof := rc.Profile
	name := prof.DisplayName
	if name == "" {
		name = rc.Message.SenderName
	}
	if prof.Username != "" {
		name = fmt.Sprintf("%s (@%s)", name, prof.Username)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "someone"
	}

	fmt.Fprintf(sb, "You are talking to %s", name)
	if rc.ChatType == models.ChatGroup {
		sb.WriteString(" in a group chat")
	}
	sb.WriteString(".\n")

	if prof.IsAdmin && prof.AdminTitle != "" {
		fmt.Fprintf(sb, "They are a Siege Corps admin known as the %s. Show them a little respect.\n", prof.AdminTitle)
	}
	if prof.IsNew() {
		sb.WriteString("This is their first message to you.\n")
	}
	switch prof.Attitude {
	case models.AttitudeHostile:
		sb.WriteString("They are being hostile. Push back with sarcasm, stay in character.\n")
	case models.AttitudeNegative:
		sb.WriteString("They seem annoyed.\n")
	case models.AttitudePositive:
		sb.WriteString("They are in a good mood.\n")
	}
	if len(prof.Interests) > 0 {
		fmt.Fprintf(sb, "Their interests: %s.\n", strings.Join(prof.Interests, ", "))
	}
	sb.WriteString("\n")
}

// Authoritative renders the resolved intent payload, or "" when there is none
func Authoritative(in models.Intent) string {
	if !in.Resolved {
		return ""
	}
	switch in.Kind {
	case models.IntentMath:
		if in.Failed {
			return fmt.Sprintf("The expression %s has no defined numeric answer (%s).", in.Query, in.Payload)
		}
		return fmt.Sprintf("The correct numeric answer to %s is %s.", in.Query, in.Payload)
	case models.IntentTime:
		return fmt.Sprintf("The current date and time is %s.", in.Payload)
	}

	if in.Failed || in.Payload == "" {
		return ""
	}
	switch in.Kind {
	case models.IntentWiki:
		title := in.Title
		if title == "" {
			title = in.Query
		}
		return fmt.Sprintf("Wikipedia summary of %s: %s", title, Trim(in.Payload, MaxSummaryChars))
	case models.IntentBusiness:
		return "Business directory entry: " + in.Payload
	case models.IntentScrape:
		return fmt.Sprintf("Text of %s: %s", in.Query, Trim(in.Payload, MaxPageChars))
	}
	return ""
}

func writeHistory(sb *strings.Builder, turns []models.HistoryTurn, limit int) {
	if len(turns) == 0 || limit <= 0 {
		return
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	sb.WriteString("Recent conversation:\n")
	for _, t := range turns {
		fmt.Fprintf(sb, "User: %s\n", t.Text)
		if t.Reply != "" {
			fmt.Fprintf(sb, "You: %s\n", t.Reply)
		}
	}
	sb.WriteString("\n")
}

// Trim cuts s to at most max runes, preferring a word boundary, and marks the cut with "..."
func Trim(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max-3])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}
