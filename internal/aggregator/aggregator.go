// Package aggregator builds the response context for an eligible message.
//
// Classification runs first and is pure. Admin status, history, profile and
// intent resolution then run in parallel, each bounded by the lookup timeout.
// A source that fails or times out contributes nothing; only a panic fails
// the whole build.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/intent"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/siegecorps/siegebot/internal/services/cache"
	"github.com/siegecorps/siegebot/internal/services/directory"
	"github.com/siegecorps/siegebot/internal/services/lookup"
	"github.com/siegecorps/siegebot/internal/services/profile"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AdminResolver reports the admin state of a sender
type AdminResolver interface {
	Status(ctx context.Context, msg models.InboundMessage) models.AdminStatus
}

// Store is the per-user state the aggregator reads and writes
type Store interface {
	GetHistory(ctx context.Context, userID int64) ([]models.HistoryTurn, error)
	AppendHistory(ctx context.Context, userID int64, turn models.HistoryTurn, capacity int) error
	GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}

// Sources are the optional lookup collaborators. Nil entries disable the intent.
type Sources struct {
	Encyclopedia lookup.Encyclopedia
	Web          lookup.Extractor
	Directory    directory.Service
	Cache        cache.Service
}

// Options configure an Aggregator
type Options struct {
	LookupTimeout   time.Duration
	HistoryCapacity int
	Location        *time.Location
	BotUsername     string
}

// Aggregator assembles ResponseContexts
type Aggregator struct {
	admin   AdminResolver
	store   Store
	src     Sources
	opts    Options
	mention *regexp.Regexp
	metrics *middleware.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// New creates an aggregator
func New(admin AdminResolver, store Store, src Sources, opts Options, metrics *middleware.Metrics, logger *logrus.Logger) *Aggregator {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 8 * time.Second
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = 10
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	a := &Aggregator{
		admin:   admin,
		store:   store,
		src:     src,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	if opts.BotUsername != "" {
		a.mention = regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(strings.TrimPrefix(opts.BotUsername, "@")) + `\b`)
	}
	return a
}

// CleanText removes mentions of the bot and collapses whitespace
func (a *Aggregator) CleanText(text string) string {
	cleaned := text
	if a.mention != nil {
		cleaned = a.mention.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.TrimLeft(cleaned, ",: ")
	if cleaned == "" {
		return strings.TrimSpace(text)
	}
	return cleaned
}

// Build gathers everything the prompt needs for msg. The profile is saved and,
// unless the message is sensitive, the turn is appended to history.
func (a *Aggregator) Build(ctx context.Context, msg models.InboundMessage, reason models.EligibilityReason) (rc *models.ResponseContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Error("Context aggregation panicked")
			rc, err = nil, fmt.Errorf("%w: %v", models.ErrInternalAggregation, r)
		}
	}()

	log := a.logger.WithFields(logrus.Fields{"chat_id": msg.ChatID, "user_id": msg.SenderID})
	clean := a.CleanText(msg.Text)
	in := intent.Classify(clean)
	sensitive := in.Kind == models.IntentSensitive
	a.recordIntent(in.Kind)

	var (
		status  models.AdminStatus
		history []models.HistoryTurn
		prof    models.UserProfile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard(func() {
		sctx, cancel := context.WithTimeout(gctx, a.opts.LookupTimeout)
		defer cancel()
		status = a.admin.Status(sctx, msg)
	}))
	g.Go(guard(func() {
		sctx, cancel := context.WithTimeout(gctx, a.opts.LookupTimeout)
		defer cancel()
		turns, err := a.store.GetHistory(sctx, msg.SenderID)
		if err != nil {
			log.WithError(err).Warn("Failed to load history")
			return
		}
		history = turns
	}))
	g.Go(guard(func() {
		sctx, cancel := context.WithTimeout(gctx, a.opts.LookupTimeout)
		defer cancel()
		p, err := a.store.GetProfile(sctx, msg.SenderID)
		if err != nil {
			log.WithError(err).Warn("Failed to load profile")
			return
		}
		if p != nil {
			prof = *p
		}
	}))
	if !sensitive {
		g.Go(guard(func() {
			in = a.resolve(gctx, in)
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := a.now()
	prof = profile.Update(prof, msg, status, now)
	if err := a.store.SaveProfile(ctx, &prof); err != nil {
		log.WithError(err).Warn("Failed to save profile")
	}

	if !sensitive {
		at := msg.ReceivedAt
		if at.IsZero() {
			at = now
		}
		if err := a.store.AppendHistory(ctx, msg.SenderID, models.HistoryTurn{Text: clean, At: at}, a.opts.HistoryCapacity); err != nil {
			log.WithError(err).Warn("Failed to append history")
		}
	}

	log.WithFields(logrus.Fields{
		"intent":   in.Kind,
		"resolved": in.Resolved,
		"failed":   in.Failed,
		"turns":    len(history),
	}).Debug("Context built")

	return &models.ResponseContext{
		Message:     msg,
		CleanText:   clean,
		ChatType:    msg.ChatType,
		Intent:      in,
		Profile:     prof,
		History:     history,
		Sensitive:   sensitive,
		Eligibility: reason,
		Complex:     intent.IsComplex(clean, in.Kind),
	}, nil
}

// guard turns a panic in a fan-out branch into ErrInternalAggregation
func guard(fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", models.ErrInternalAggregation, r)
			}
		}()
		fn()
		return nil
	}
}

func (a *Aggregator) resolve(ctx context.Context, in models.Intent) models.Intent {
	switch in.Kind {
	case models.IntentTime:
		in.Payload = intent.RenderTime(a.now(), a.opts.Location)
		in.Resolved = true
	case models.IntentWiki:
		if a.src.Encyclopedia != nil {
			return a.cached(ctx, in, a.lookupWiki)
		}
	case models.IntentBusiness:
		if a.src.Directory != nil {
			return a.lookupDirectory(ctx, in)
		}
	case models.IntentScrape:
		if a.src.Web != nil {
			return a.cached(ctx, in, a.lookupWeb)
		}
	}
	return in
}

type resolver func(ctx context.Context, query string) (title, payload string, err error)

// cached serves a lookup from the cache, or runs fn under the lookup timeout and stores the result
func (a *Aggregator) cached(ctx context.Context, in models.Intent, fn resolver) models.Intent {
	kind := string(in.Kind)
	if a.src.Cache != nil {
		if entry, ok := a.src.Cache.Get(ctx, in.Kind, in.Query); ok {
			a.recordLookup(kind, "cached")
			in.Title, in.Payload, in.Resolved = entry.Title, entry.Value, true
			return in
		}
	}

	lctx, cancel := context.WithTimeout(ctx, a.opts.LookupTimeout)
	defer cancel()

	title, payload, err := fn(lctx, in.Query)
	in.Resolved = true
	if err != nil {
		err = classify(lctx, err)
		a.recordLookup(kind, lookupStatus(err))
		a.logger.WithError(err).WithFields(logrus.Fields{
			"intent": in.Kind,
			"query":  in.Query,
		}).Debug("Lookup failed")
		in.Failed = true
		return in
	}

	a.recordLookup(kind, "ok")
	in.Title, in.Payload = title, payload
	if a.src.Cache != nil {
		if err := a.src.Cache.Set(ctx, in.Kind, in.Query, title, payload); err != nil {
			a.logger.WithError(err).Warn("Failed to cache lookup")
		}
	}
	return in
}

// lookupWiki follows one disambiguation to its first candidate
func (a *Aggregator) lookupWiki(ctx context.Context, query string) (string, string, error) {
	art, err := a.src.Encyclopedia.Lookup(ctx, query)
	var dis *lookup.DisambiguationError
	if errors.As(err, &dis) {
		if len(dis.Candidates) == 0 {
			return "", "", lookup.ErrNotFound
		}
		art, err = a.src.Encyclopedia.Lookup(ctx, dis.Candidates[0])
		if errors.As(err, &dis) {
			return "", "", lookup.ErrNotFound
		}
	}
	if err != nil {
		return "", "", err
	}
	return art.Title, art.Summary, nil
}

func (a *Aggregator) lookupWeb(ctx context.Context, url string) (string, string, error) {
	text, err := a.src.Web.Extract(ctx, url)
	if err != nil {
		return "", "", err
	}
	return url, text, nil
}

func (a *Aggregator) lookupDirectory(ctx context.Context, in models.Intent) models.Intent {
	in.Resolved = true
	e, err := a.src.Directory.Find(ctx, in.Query)
	if err != nil {
		a.recordLookup(string(in.Kind), lookupStatus(err))
		in.Failed = true
		return in
	}
	rendered := directory.Render(e, in.Facet)
	if rendered == "" {
		a.recordLookup(string(in.Kind), "not_found")
		in.Failed = true
		return in
	}
	a.recordLookup(string(in.Kind), "ok")
	in.Title, in.Payload = e.Name, rendered
	return in
}

// classify maps deadline expiry to ErrLookupTimeout
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrLookupTimeout, err)
	}
	return err
}

func lookupStatus(err error) string {
	switch {
	case errors.Is(err, models.ErrLookupTimeout):
		return "timeout"
	case errors.Is(err, models.ErrLookupDenied):
		return "denied"
	case errors.Is(err, lookup.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (a *Aggregator) recordIntent(kind models.IntentKind) {
	if a.metrics != nil {
		a.metrics.RecordIntent(string(kind))
	}
}

func (a *Aggregator) recordLookup(kind, status string) {
	if a.metrics != nil {
		a.metrics.RecordLookup(kind, status)
	}
}
