// Package orchestrator drives one inbound message through admission,
// context aggregation, generation and delivery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/siegecorps/siegebot/internal/i18n"
	"github.com/siegecorps/siegebot/internal/intent"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/persona"
	"github.com/siegecorps/siegebot/internal/postprocess"
	"github.com/siegecorps/siegebot/internal/prompt"
	"github.com/siegecorps/siegebot/internal/services/ai"
	"github.com/siegecorps/siegebot/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ContextBuilder assembles the response context of an eligible message
type ContextBuilder interface {
	Build(ctx context.Context, msg models.InboundMessage, reason models.EligibilityReason) (*models.ResponseContext, error)
}

// Personas selects the active voice of a conversation
type Personas interface {
	Active(ctx context.Context, chatID int64) persona.Persona
	Set(ctx context.Context, chatID int64, name string) (persona.Persona, error)
}

// AdminResolver reports the admin state of a sender
type AdminResolver interface {
	Status(ctx context.Context, msg models.InboundMessage) models.AdminStatus
}

// Transport delivers replies. Both calls return models.ErrUndeliverable when
// the conversation can no longer receive messages.
type Transport interface {
	Send(ctx context.Context, reply models.OutboundReply) error
	Typing(ctx context.Context, chatID int64) error
}

// Store is the persistence the orchestrator writes after delivery
type Store interface {
	AttachReply(ctx context.Context, userID int64, reply string) error
	ClearHistory(ctx context.Context, userID int64) error
	GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	IncrementUserStats(ctx context.Context, userID int64, replied bool) error
	Record(ctx context.Context, in models.Interaction) error
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	ChatLimiter middleware.RateLimiter
	UserLimiter middleware.RateLimiter
	Security    *middleware.SecurityMiddleware
	Aggregator  ContextBuilder
	Personas    Personas
	Admin       AdminResolver
	Prompts     prompt.Builder
	Generator   ai.Generator
	Transport   Transport
	Store       Store
	Localizer   *i18n.Localizer
	Rand        postprocess.Rand
	Metrics     *middleware.Metrics
	Logger      *logrus.Logger
}

// Options tune the pipeline
type Options struct {
	Bot           models.BotIdentity
	CommandPrefix string
	Operators     []int64
	// Notice enables the one-per-window throttling notice
	Notice       bool
	NoticeWindow time.Duration
	MaxReply     int
	// BackgroundTimeout bounds the asynchronous record and stats writes
	BackgroundTimeout time.Duration
}

// Orchestrator runs the per-message state machine
type Orchestrator struct {
	Deps
	opts      Options
	operators map[int64]bool
	notices   *cache.Cache
	now       func() time.Time
	wg        sync.WaitGroup
}

// New creates an orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = "/"
	}
	if opts.NoticeWindow <= 0 {
		opts.NoticeWindow = time.Minute
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = 10 * time.Second
	}
	if deps.Security == nil {
		deps.Security = middleware.NewSecurityMiddleware(deps.Logger, 0)
	}
	if deps.Localizer == nil {
		deps.Localizer = i18n.Default()
	}

	ops := make(map[int64]bool, len(opts.Operators))
	for _, id := range opts.Operators {
		ops[id] = true
	}
	return &Orchestrator{
		Deps:      deps,
		opts:      opts,
		operators: ops,
		notices:   cache.New(opts.NoticeWindow, 2*opts.NoticeWindow),
		now:       time.Now,
	}
}

// Handle runs admission and processing synchronously
func (o *Orchestrator) Handle(ctx context.Context, msg models.InboundMessage) *Outcome {
	out, ok := o.Admit(msg)
	if ok {
		o.Process(ctx, msg, out)
	}
	return out
}

// Admit performs the rate and eligibility checks. It must be called in the
// order messages were received. Only eligible messages consume rate budget.
func (o *Orchestrator) Admit(msg models.InboundMessage) (*Outcome, bool) {
	now := msg.ReceivedAt
	if now.IsZero() {
		now = o.now()
	}
	out := newOutcome(now)
	if o.Metrics != nil {
		o.Metrics.RecordMessageReceived(string(msg.ChatType))
	}

	reason := models.EligibleNone
	if err := o.Security.ValidateInput(msg.Text); err == nil {
		reason = Eligibility(msg, o.opts.Bot, o.opts.CommandPrefix)
	}
	out.Reason = reason

	if reason != models.EligibleNone {
		if scope, ok := o.admitRate(msg, now); !ok {
			out.enter(StateRateChecked)
			out.Err = models.ErrRateLimited
			if o.Metrics != nil {
				o.Metrics.RecordRateLimitExceeded(scope)
			}
			// a throttled chat stays silent
			if scope == "user" {
				o.throttleNotice(msg)
			}
			o.finish(msg, out, StateRejected)
			return out, false
		}
	}
	out.enter(StateRateChecked)
	out.enter(StateEligible)

	if reason == models.EligibleNone {
		out.Err = models.ErrIneligible
		o.finish(msg, out, StateIgnored)
		return out, false
	}
	return out, true
}

// admitRate checks the user window first so a rejected user never spends chat budget
func (o *Orchestrator) admitRate(msg models.InboundMessage, now time.Time) (string, bool) {
	if o.UserLimiter != nil && !o.UserLimiter.Admit(msg.SenderID, now) {
		return "user", false
	}
	if o.ChatLimiter != nil && !o.ChatLimiter.Admit(msg.ChatID, now) {
		return "chat", false
	}
	return "", true
}

func (o *Orchestrator) throttleNotice(msg models.InboundMessage) {
	if !o.opts.Notice {
		return
	}
	if err := o.notices.Add(strconv.FormatInt(msg.SenderID, 10), struct{}{}, o.opts.NoticeWindow); err != nil {
		return // already notified this window
	}
	text := o.Localizer.T(i18n.MsgThrottled, nil)
	o.background(func(ctx context.Context) {
		if err := o.send(ctx, msg, text); err != nil {
			o.Logger.WithError(err).WithField("chat_id", msg.ChatID).Debug("Failed to send throttle notice")
		}
	})
}

// Process runs an admitted message to a terminal state
func (o *Orchestrator) Process(ctx context.Context, msg models.InboundMessage, out *Outcome) {
	log := logger.WithContext(o.Logger, msg.ChatID, msg.SenderID)
	p := o.Personas.Active(ctx, msg.ChatID)
	out.Persona = p.Name()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Pipeline panicked")
			if out.Done() {
				return
			}
			out.Err = fmt.Errorf("%w: %v", models.ErrInternalAggregation, r)
			o.fail(ctx, msg, out, p)
		}
	}()

	if out.Reason == models.EligibleCommand {
		o.runCommand(ctx, msg, out, p)
		return
	}

	undeliverable := false
	if err := o.Transport.Typing(ctx, msg.ChatID); errors.Is(err, models.ErrUndeliverable) {
		undeliverable = true
	}

	rc, err := o.Aggregator.Build(ctx, msg, out.Reason)
	if err != nil {
		out.Err = err
		o.fail(ctx, msg, out, p)
		return
	}
	out.enter(StateContextBuilt)
	out.Intent = rc.Intent.Kind

	var text string
	if rc.Sensitive {
		out.enter(StateShortCircuited)
		text = intent.Deflection(o.Rand)
	} else {
		req := o.Prompts.Build(p, rc)
		raw, err := o.Generator.Generate(ctx, req)
		if err != nil {
			out.Err = err
			o.fail(ctx, msg, out, p)
			return
		}
		out.enter(StateGenerated)

		text = postprocess.Process(p, raw, postprocess.Options{
			Complex:    rc.Complex,
			Attitude:   rc.Profile.Attitude,
			IsAdmin:    rc.Profile.IsAdmin,
			AdminTitle: rc.Profile.AdminTitle,
			MaxChars:   o.opts.MaxReply,
		}, o.Rand)
		if text == "" {
			out.Err = fmt.Errorf("%w: empty reply after post-processing", models.ErrGenerationProvider)
			o.fail(ctx, msg, out, p)
			return
		}
	}
	out.enter(StatePostProcessed)
	out.Reply = text

	if undeliverable {
		out.Err = models.ErrUndeliverable
		o.finish(msg, out, StateDiscarded)
		return
	}
	if err := o.send(ctx, msg, text); err != nil {
		out.Err = err
		if errors.Is(err, models.ErrUndeliverable) {
			o.finish(msg, out, StateDiscarded)
			return
		}
		log.WithError(err).Error("Failed to send reply")
		o.finish(msg, out, StateFailed)
		return
	}

	if !rc.Sensitive {
		if err := o.Store.AttachReply(ctx, msg.SenderID, text); err != nil {
			log.WithError(err).Warn("Failed to store reply")
		}
	}
	o.finish(msg, out, StateSent)
}

// fail sends the persona fallback and ends in FAILED
func (o *Orchestrator) fail(ctx context.Context, msg models.InboundMessage, out *Outcome, p persona.Persona) {
	logger.WithContext(o.Logger, msg.ChatID, msg.SenderID).
		WithError(out.Err).WithField("state", out.State()).Warn("Pipeline failed, sending fallback")

	out.Reply = p.FallbackMessage()
	if err := o.send(ctx, msg, out.Reply); err != nil {
		o.Logger.WithError(err).WithField("chat_id", msg.ChatID).Debug("Failed to send fallback")
	}
	o.finish(msg, out, StateFailed)
}

func (o *Orchestrator) send(ctx context.Context, msg models.InboundMessage, text string) error {
	return o.Transport.Send(ctx, models.OutboundReply{
		ChatID:           msg.ChatID,
		Text:             o.Security.TruncateForTransport(text),
		ReplyToMessageID: msg.MessageID,
	})
}

// finish moves out to a terminal state, records metrics and, for handled
// messages, writes the interaction record and user stats in the background
func (o *Orchestrator) finish(msg models.InboundMessage, out *Outcome, final State) {
	out.enter(final)
	latency := out.Latency()
	if o.Metrics != nil {
		o.Metrics.RecordOutcome(string(final), latency)
	}

	o.Logger.WithFields(logrus.Fields{
		"chat_id": msg.ChatID,
		"user_id": msg.SenderID,
		"state":   final,
		"intent":  out.Intent,
		"persona": out.Persona,
		"trace":   out.String(),
	}).Debug("Message handled")

	if final != StateSent && final != StateFailed {
		return
	}
	record := models.Interaction{
		ID:        uuid.NewString(),
		ChatID:    msg.ChatID,
		UserID:    msg.SenderID,
		Username:  msg.SenderUsername,
		Text:      msg.Text,
		Reply:     out.Reply,
		Intent:    out.Intent,
		Persona:   out.Persona,
		State:     string(final),
		Latency:   latency,
		CreatedAt: o.now().UTC(),
	}
	replied := final == StateSent
	o.background(func(ctx context.Context) {
		if err := o.Store.IncrementUserStats(ctx, msg.SenderID, replied); err != nil {
			o.Logger.WithError(err).Warn("Failed to update user stats")
		}
		if err := o.Store.Record(ctx, record); err != nil {
			o.Logger.WithError(err).Warn("Failed to record interaction")
		}
	})
}

// background runs fn detached from the message context under its own timeout
func (o *Orchestrator) background(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.BackgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background writes and notices have finished
func (o *Orchestrator) Wait() { o.wg.Wait() }
