package middleware

import (
	"sync"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/sirupsen/logrus"
)

// RateLimiter admits or rejects events per subject (a user id or a chat id)
type RateLimiter interface {
	Admit(subject int64, now time.Time) bool
	Reset(subject int64)
	Evict(idle time.Duration, now time.Time) int
	Len() int
}

// rateWindow holds the admission timestamps of one subject, oldest first
type rateWindow struct {
	stamps []time.Time
}

// SlidingWindow implements a per-subject sliding window limiter.
// After pruning, a window never retains more than max timestamps.
type SlidingWindow struct {
	name    string
	enabled bool
	max     int
	window  time.Duration
	mu      sync.Mutex
	windows map[int64]*rateWindow
	logger  *logrus.Logger
}

// NewSlidingWindow creates a limiter admitting max events per window for each subject
func NewSlidingWindow(name string, max int, window time.Duration, logger *logrus.Logger) *SlidingWindow {
	return &SlidingWindow{
		name:    name,
		enabled: true,
		max:     max,
		window:  window,
		windows: make(map[int64]*rateWindow),
		logger:  logger,
	}
}

// NewRateLimiters creates the chat and user limiters from configuration
func NewRateLimiters(cfg *config.Config, logger *logrus.Logger) (chat, user *SlidingWindow) {
	chat = NewSlidingWindow("chat", cfg.RateLimit.Chat.Max, cfg.RateLimit.Chat.Window, logger)
	user = NewSlidingWindow("user", cfg.RateLimit.User.Max, cfg.RateLimit.User.Window, logger)
	if !cfg.RateLimit.Enabled {
		chat.enabled = false
		user.enabled = false
	}
	return chat, user
}

// Admit prunes timestamps older than now-window and admits if fewer than max remain
func (r *SlidingWindow) Admit(subject int64, now time.Time) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[subject]
	if !ok {
		w = &rateWindow{stamps: make([]time.Time, 0, r.max)}
		r.windows[subject] = w
	}
	w.prune(now.Add(-r.window))

	if len(w.stamps) >= r.max {
		r.logger.WithFields(logrus.Fields{
			"limiter": r.name,
			"subject": subject,
			"count":   len(w.stamps),
		}).Warn("Rate limit exceeded")
		return false
	}

	w.stamps = append(w.stamps, now)
	return true
}

// Count returns the number of timestamps retained for subject at now
func (r *SlidingWindow) Count(subject int64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[subject]
	if !ok {
		return 0
	}
	w.prune(now.Add(-r.window))
	return len(w.stamps)
}

// Reset forgets a subject
func (r *SlidingWindow) Reset(subject int64) {
	r.mu.Lock()
	delete(r.windows, subject)
	r.mu.Unlock()
}

// Evict removes subjects whose newest admission is older than idle and returns how many were removed
func (r *SlidingWindow) Evict(idle time.Duration, now time.Time) int {
	cutoff := now.Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for subject, w := range r.windows {
		if len(w.stamps) == 0 || w.stamps[len(w.stamps)-1].Before(cutoff) {
			delete(r.windows, subject)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked subjects
func (r *SlidingWindow) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Name returns the limiter scope, "chat" or "user"
func (r *SlidingWindow) Name() string {
	return r.name
}

// Window returns the window length
func (r *SlidingWindow) Window() time.Duration {
	return r.window
}

func (w *rateWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
