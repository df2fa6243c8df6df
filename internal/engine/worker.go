package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/metrics"
	"github.com/campwatch/campwatch/internal/upstream"
)

// errNoEligibleScans marks a poll skipped because the job's scans lapsed
// between reconciliation and dispatch.
var errNoEligibleScans = errors.New("no eligible scans")

// runJob executes one claimed polling job and releases the claim whatever
// happens.
func (e *Engine) runJob(ctx context.Context, job db.PollingJob) {
	defer e.wg.Done()
	defer e.inflight.Release(job.CampgroundID)

	start := time.Now()
	logger := e.logger.With(slog.String("campground", job.CampgroundID))

	err := e.pollCampground(ctx, job, logger)
	metrics.ObservePollDuration(time.Since(start))

	now := time.Now().UTC()
	if err == nil || errors.Is(err, errNoEligibleScans) {
		if err == nil {
			metrics.IncPoll("success")
		} else {
			metrics.IncPoll("skipped")
		}
		if uerr := e.store.UpdateJobSuccess(ctx, job.CampgroundID, now, job.PollFrequencyMinutes); uerr != nil {
			logger.Error("record poll success failed", slog.String("err", uerr.Error()))
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown mid-poll: release the claim without counting an error.
		if uerr := e.store.SetJobPolling(context.WithoutCancel(ctx), job.CampgroundID, false); uerr != nil {
			logger.Error("release claim on shutdown failed", slog.String("err", uerr.Error()))
		}
		return
	}

	metrics.IncPoll("error")
	logger.Warn("poll failed", slog.String("err", err.Error()), slog.Int("consecutive_errors", job.ConsecutiveErrors+1))
	e.recordJobError(ctx, job, err, now, logger)
}

func (e *Engine) recordJobError(ctx context.Context, job db.PollingJob, pollErr error, now time.Time, logger *slog.Logger) {
	count := job.ConsecutiveErrors + 1
	next := now.Add(time.Duration(job.PollFrequencyMinutes) * time.Minute)
	if count >= e.cfg.MaxConsecutiveErrors {
		next = now.Add(e.cfg.ErrorBackoff)
		logger.Error("error ceiling reached, backing off",
			slog.Int("errors", count), slog.Time("next_poll_at", next))
		if e.alerter != nil {
			e.alerter.Notify(fmt.Sprintf("campground %s hit %d consecutive poll errors, backing off until %s: %v",
				job.CampgroundID, count, next.Format(time.RFC3339), pollErr))
		}
	}
	if err := e.store.UpdateJobError(ctx, job.CampgroundID, count, next, now); err != nil {
		logger.Error("record poll error failed", slog.String("err", err.Error()))
	}
	if err := e.store.WriteAvailabilityError(ctx, job.CampgroundID, now, now, pollErr.Error()); err != nil {
		logger.Error("record availability error failed", slog.String("err", err.Error()))
	}
}

// pollCampground is one fetch-diff-notify cycle for a campground.
func (e *Engine) pollCampground(ctx context.Context, job db.PollingJob, logger *slog.Logger) error {
	now := time.Now().UTC()

	scans, err := e.store.ListEligibleScans(ctx, job.CampgroundID, now)
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}
	if len(scans) == 0 {
		logger.Info("no eligible scans, skipping poll")
		return errNoEligibleScans
	}

	// One fetch covers every scan's window, checkout date included. The
	// notifier applies the half-open [check-in, check-out) filter itself.
	from, to := scans[0].CheckIn, scans[0].CheckOut
	for _, sc := range scans[1:] {
		if sc.CheckIn.Before(from) {
			from = sc.CheckIn
		}
		if sc.CheckOut.After(to) {
			to = sc.CheckOut
		}
	}

	if err := e.session.EnsureValid(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := e.governor.Wait(ctx); err != nil {
		return err
	}

	snapshot, err := e.client.FetchMonthlyAvailability(ctx, job.CampgroundID, from, to)
	e.governor.MarkCall()
	if err != nil {
		if errors.Is(err, upstream.ErrAuthFailed) {
			e.session.Invalidate()
		}
		return fmt.Errorf("fetch availability: %w", err)
	}

	previous, err := e.store.ReadAvailabilityRange(ctx, job.CampgroundID, from, to)
	if err != nil {
		return fmt.Errorf("read prior state: %w", err)
	}
	if err := e.store.WriteSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	newSites := Diff(previous, snapshot)
	logger.Info("poll complete",
		slog.Int("scans", len(scans)),
		slog.Int("sites", len(snapshot.Sites)),
		slog.Int("new", len(newSites)))
	if len(newSites) == 0 {
		return nil
	}

	if err := e.notifier.NotifyScans(ctx, job.CampgroundID, scans, snapshot, newSites); err != nil {
		// The snapshot is already stored; a delivery problem doesn't
		// make the poll itself an upstream error.
		logger.Error("notify failed", slog.String("err", err.Error()))
	}
	return nil
}
