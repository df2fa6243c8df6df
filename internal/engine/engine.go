package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/upstream"
)

// Notifier delivers availability notifications for the scans that match a
// poll's newly opened sites.
type Notifier interface {
	NotifyScans(ctx context.Context, campgroundID string, scans []db.UserScan, snapshot upstream.CampgroundAvailability, newSites []upstream.SiteAvailability) error
}

// Alerter receives operational alerts (budget exhausted, job backed off).
// Implementations must tolerate being nil-configured; see alert.Alerter.
type Alerter interface {
	Notify(msg string)
}

// Config carries the engine's tunables. Zero values are filled in by
// WithDefaults.
type Config struct {
	CheckInterval        time.Duration
	DefaultPollFrequency time.Duration
	MaxConsecutiveErrors int
	ErrorBackoff         time.Duration
	BatchLimit           int
	SpawnDelay           time.Duration
	ClaimTimeout         time.Duration
}

func (c Config) WithDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.DefaultPollFrequency <= 0 {
		c.DefaultPollFrequency = 15 * time.Minute
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 5
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Hour
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	if c.SpawnDelay <= 0 {
		c.SpawnDelay = 100 * time.Millisecond
	}
	if c.ClaimTimeout <= 0 {
		c.ClaimTimeout = 10 * time.Minute
	}
	return c
}

// Engine is the scan-execution loop: it reconciles polling jobs from user
// scans, picks due jobs, and runs one worker per claimed campground.
type Engine struct {
	store    *db.Store
	client   *upstream.Client
	session  *upstream.Session
	governor *Governor
	notifier Notifier
	alerter  Alerter
	cfg      Config
	logger   *slog.Logger

	inflight *inflight
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastTick  time.Time
	tickCount int64
}

// Stats is the engine's view on the status endpoint.
type Stats struct {
	LastTick  time.Time `json:"last_tick"`
	TickCount int64     `json:"tick_count"`
	InFlight  int       `json:"in_flight"`
}

func New(store *db.Store, client *upstream.Client, session *upstream.Session, governor *Governor, notifier Notifier, alerter Alerter, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		client:   client,
		session:  session,
		governor: governor,
		notifier: notifier,
		alerter:  alerter,
		cfg:      cfg.WithDefaults(),
		logger:   logger,
		inflight: newInflight(),
	}
}

// Run drives the scheduler until the context ends, then waits for
// in-flight workers to finish.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Duration("check_interval", e.cfg.CheckInterval),
		slog.Duration("default_poll_frequency", e.cfg.DefaultPollFrequency))

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	// First pass immediately rather than one interval in.
	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping, draining workers", slog.Int("in_flight", e.inflight.Len()))
			e.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one scheduling pass: reconcile jobs, select due ones, claim
// and dispatch. A short delay between spawns spreads the upstream load.
func (e *Engine) tick(ctx context.Context) {
	now := time.Now().UTC()
	e.mu.Lock()
	e.lastTick = now
	e.tickCount++
	e.mu.Unlock()

	if err := e.store.RefreshPollingJobs(ctx, now, int(e.cfg.DefaultPollFrequency.Minutes())); err != nil {
		e.logger.Error("refresh polling jobs failed", slog.String("err", err.Error()))
		return
	}

	jobs, err := e.store.ListDueJobs(ctx, now, e.cfg.BatchLimit, e.cfg.MaxConsecutiveErrors)
	if err != nil {
		e.logger.Error("list due jobs failed", slog.String("err", err.Error()))
		return
	}
	if len(jobs) == 0 {
		return
	}
	e.logger.Info("dispatching due jobs", slog.Int("count", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if !e.inflight.TryClaim(job.CampgroundID, now) {
			continue
		}
		if !e.governor.Reserve() {
			e.inflight.Release(job.CampgroundID)
			e.logger.Warn("hourly API budget exhausted, deferring remaining jobs")
			if e.alerter != nil {
				e.alerter.Notify("hourly API budget exhausted; polling deferred until the window clears")
			}
			return
		}
		if err := e.store.SetJobPolling(ctx, job.CampgroundID, true); err != nil {
			e.inflight.Release(job.CampgroundID)
			e.logger.Error("claim job failed", slog.String("campground", job.CampgroundID), slog.String("err", err.Error()))
			continue
		}

		e.wg.Add(1)
		go e.runJob(ctx, job)

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.SpawnDelay):
		}
	}
}

// SweepInflight clears process-local claims older than the claim timeout.
// Run from cron alongside the database sweep.
func (e *Engine) SweepInflight(now time.Time) {
	if n := e.inflight.SweepOlderThan(now.Add(-e.cfg.ClaimTimeout)); n > 0 {
		e.logger.Warn("cleared stuck in-flight claims", slog.Int("count", n))
	}
}

// WaitWorkers blocks until every dispatched worker has returned.
func (e *Engine) WaitWorkers() { e.wg.Wait() }

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		LastTick:  e.lastTick,
		TickCount: e.tickCount,
		InFlight:  e.inflight.Len(),
	}
}
