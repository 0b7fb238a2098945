package admin

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SnapshotSource lists the administrators of a chat
type SnapshotSource interface {
	ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

type snapshot map[int64]struct{}

// Registry resolves whether a sender is a known admin. Static records match
// on identity fragments; chat administrators come from transport snapshots
// refreshed at most once per interval per chat.
type Registry struct {
	records   []models.AdminRecord
	source    SnapshotSource
	interval  time.Duration
	snapshots *expirable.LRU[int64, snapshot]
	logger    *logrus.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter

	now func() time.Time
}

// NewRegistry creates a registry. An empty known list uses DefaultRecords.
func NewRegistry(cfg config.AdminConfig, source SnapshotSource, logger *logrus.Logger) *Registry {
	records := cfg.Known
	if len(records) == 0 {
		records = DefaultRecords()
	}
	size := cfg.SnapshotSize
	if size <= 0 {
		size = 1024
	}
	return &Registry{
		records:   normalize(records),
		source:    source,
		interval:  cfg.RefreshInterval,
		snapshots: expirable.NewLRU[int64, snapshot](size, nil, 2*cfg.RefreshInterval),
		logger:    logger,
		limiters:  make(map[int64]*rate.Limiter),
		now:       time.Now,
	}
}

// Match finds the static record whose variation appears in the sender identity
func (r *Registry) Match(username, firstName string) (models.AdminRecord, bool) {
	identity := strings.ToLower(strings.TrimSpace(username + " " + firstName))
	if identity == "" {
		return models.AdminRecord{}, false
	}
	for _, rec := range r.records {
		for _, v := range rec.Variations {
			if v != "" && strings.Contains(identity, v) {
				return rec, true
			}
		}
	}
	return models.AdminRecord{}, false
}

// Status resolves the admin state of the sender of msg
func (r *Registry) Status(ctx context.Context, msg models.InboundMessage) models.AdminStatus {
	var status models.AdminStatus
	if rec, ok := r.Match(msg.SenderUsername, msg.SenderName); ok {
		status = models.AdminStatus{IsAdmin: true, Name: rec.Name, Title: rec.Title}
	}

	if msg.ChatType == models.ChatGroup && r.source != nil {
		if r.isChatAdmin(ctx, msg.ChatID, msg.SenderID) {
			status.IsAdmin = true
			status.ChatAdmin = true
		}
	}
	return status
}

func (r *Registry) isChatAdmin(ctx context.Context, chatID, userID int64) bool {
	if r.allowRefresh(chatID) {
		if err := r.refresh(ctx, chatID); err != nil {
			r.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to refresh chat administrators")
		}
	}
	snap, ok := r.snapshots.Get(chatID)
	if !ok {
		return false
	}
	_, admin := snap[userID]
	return admin
}

func (r *Registry) refresh(ctx context.Context, chatID int64) error {
	ids, err := r.source.ChatAdministrators(ctx, chatID)
	if err != nil {
		return err
	}
	snap := make(snapshot, len(ids))
	for _, id := range ids {
		snap[id] = struct{}{}
	}
	r.snapshots.Add(chatID, snap)
	r.logger.WithFields(logrus.Fields{"chat_id": chatID, "admins": len(ids)}).Debug("Refreshed chat administrators")
	return nil
}

func (r *Registry) allowRefresh(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.interval), 1)
		r.limiters[chatID] = lim
	}
	return lim.AllowN(r.now(), 1)
}

// EvictIdle drops refresh limiters that have fully recovered, which means the
// chat has not been refreshed for at least one interval. Returns the number removed.
func (r *Registry) EvictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for chatID, lim := range r.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(r.limiters, chatID)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of chats with a live refresh limiter
func (r *Registry) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func normalize(records []models.AdminRecord) []models.AdminRecord {
	out := make([]models.AdminRecord, len(records))
	for i, rec := range records {
		vars := make([]string, 0, len(rec.Variations))
		for _, v := range rec.Variations {
			vars = append(vars, strings.ToLower(strings.TrimSpace(v)))
		}
		out[i] = models.AdminRecord{Name: rec.Name, Title: rec.Title, Variations: vars}
	}
	return out
}
