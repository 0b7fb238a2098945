// Package scheduler runs the periodic housekeeping of the bot: evicting idle
// rate-limit and admin state, storage maintenance and refreshing gauges.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Limiter is a keyed store of per-subject rate windows
type Limiter interface {
	Name() string
	Window() time.Duration
	Evict(idle time.Duration, now time.Time) int
	Len() int
}

// AdminTracker holds per-chat admin snapshots
type AdminTracker interface {
	EvictIdle(now time.Time) int
	Tracked() int
}

// Maintainer is storage that needs periodic cleanup
type Maintainer interface {
	Cleanup(ctx context.Context) error
}

// Reloader is a data source reloaded from disk
type Reloader interface {
	Reload(ctx context.Context) error
}

// PersonaCounter reports how many scopes use each persona
type PersonaCounter interface {
	Counts(ctx context.Context) (map[string]int, error)
}

// WorkerPool reports its live workers
type WorkerPool interface {
	Active() int
}

// Targets are the components the janitor sweeps. Nil fields are skipped.
type Targets struct {
	Limiters  []Limiter
	Admin     AdminTracker
	Storage   Maintainer
	Directory Reloader
	Personas  PersonaCounter
	Workers   WorkerPool
}

// Options configure the janitor
type Options struct {
	EvictInterval       time.Duration
	MaintenanceInterval time.Duration
	// IdleWindows is how many windows a subject may stay silent before eviction
	IdleWindows int
}

// Janitor owns a gocron scheduler running the housekeeping jobs
type Janitor struct {
	targets   Targets
	opts      Options
	metrics   *middleware.Metrics
	logger    *logrus.Logger
	scheduler gocron.Scheduler
	now       func() time.Time
}

// New creates a janitor. Jobs are registered by Start.
func New(targets Targets, opts Options, metrics *middleware.Metrics, log *logrus.Logger) (*Janitor, error) {
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = time.Minute
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = 15 * time.Minute
	}
	if opts.IdleWindows < 2 {
		opts.IdleWindows = 2
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.NewSchedulerLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Janitor{
		targets:   targets,
		opts:      opts,
		metrics:   metrics,
		logger:    log,
		scheduler: s,
		now:       time.Now,
	}, nil
}

// Start registers the jobs and starts the scheduler. ctx bounds the jobs' I/O.
func (j *Janitor) Start(ctx context.Context) error {
	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"evict_idle", j.opts.EvictInterval, func() { j.Evict() }},
		{"maintenance", j.opts.MaintenanceInterval, func() { j.Maintain(ctx) }},
		{"gauges", j.opts.EvictInterval, func() { j.Gauges(ctx) }},
	}

	for _, job := range jobs {
		_, err := j.scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule job %q: %w", job.name, err)
		}
		j.logger.WithFields(logrus.Fields{
			"name":     job.name,
			"interval": job.interval,
		}).Info("Job scheduled")
	}

	j.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down and waits for running jobs
func (j *Janitor) Stop() error {
	if err := j.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// Evict drops subjects idle for IdleWindows windows and admin snapshots past
// their refresh interval. Returns the number of entries removed.
func (j *Janitor) Evict() int {
	now := j.now()
	removed := 0
	for _, l := range j.targets.Limiters {
		n := l.Evict(time.Duration(j.opts.IdleWindows)*l.Window(), now)
		removed += n
		if n > 0 {
			j.logger.WithFields(logrus.Fields{"limiter": l.Name(), "evicted": n}).Debug("Evicted idle subjects")
		}
	}
	if j.targets.Admin != nil {
		removed += j.targets.Admin.EvictIdle(now)
	}
	return removed
}

// Maintain runs storage cleanup and reloads the directory
func (j *Janitor) Maintain(ctx context.Context) {
	if j.targets.Storage != nil {
		if err := j.targets.Storage.Cleanup(ctx); err != nil {
			j.logger.WithError(err).Warn("Storage cleanup failed")
		}
	}
	if j.targets.Directory != nil {
		if err := j.targets.Directory.Reload(ctx); err != nil {
			j.logger.WithError(err).Warn("Directory reload failed")
		}
	}
}

// Gauges publishes the sizes of the keyed stores
func (j *Janitor) Gauges(ctx context.Context) {
	if j.metrics == nil {
		return
	}
	for _, l := range j.targets.Limiters {
		j.metrics.SetTrackedSubjects(l.Name(), l.Len())
	}
	if j.targets.Admin != nil {
		j.metrics.SetTrackedSubjects("admin", j.targets.Admin.Tracked())
	}
	if j.targets.Workers != nil {
		j.metrics.SetActiveWorkers(j.targets.Workers.Active())
	}
	if j.targets.Personas != nil {
		counts, err := j.targets.Personas.Counts(ctx)
		if err != nil {
			j.logger.WithError(err).Debug("Failed to count personas")
			return
		}
		j.metrics.SetActivePersonas(counts)
	}
}
