package db

import (
	"context"
	"database/sql"
	"time"
)

// ListDueJobs returns jobs ready to poll: wanted by at least one scan, due,
// unclaimed, and not tripped on consecutive errors. Higher priority first,
// then the longest-overdue.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time, limit, maxErrors int) ([]PollingJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT campground_id, active_scan_count, last_polled, next_poll_at,
		       poll_frequency_minutes, consecutive_errors, is_being_polled, priority, updated_at
		FROM polling_jobs
		WHERE active_scan_count > 0
		  AND next_poll_at <= ?
		  AND NOT is_being_polled
		  AND consecutive_errors < ?
		ORDER BY priority DESC, next_poll_at ASC
		LIMIT ?
	`, now, maxErrors, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PollingJob
	for rows.Next() {
		var j PollingJob
		if err := rows.Scan(&j.CampgroundID, &j.ActiveScanCount, &j.LastPolled, &j.NextPollAt,
			&j.PollFrequencyMinutes, &j.ConsecutiveErrors, &j.IsBeingPolled, &j.Priority, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// GetJob fetches one job; the bool reports whether it exists.
func (s *Store) GetJob(ctx context.Context, campgroundID string) (PollingJob, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT campground_id, active_scan_count, last_polled, next_poll_at,
		       poll_frequency_minutes, consecutive_errors, is_being_polled, priority, updated_at
		FROM polling_jobs WHERE campground_id=?
	`, campgroundID)
	var j PollingJob
	err := row.Scan(&j.CampgroundID, &j.ActiveScanCount, &j.LastPolled, &j.NextPollAt,
		&j.PollFrequencyMinutes, &j.ConsecutiveErrors, &j.IsBeingPolled, &j.Priority, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return PollingJob{}, false, nil
	}
	if err != nil {
		return PollingJob{}, false, err
	}
	return j, true, nil
}

// SetJobPolling flips the claim flag. The flag keeps a second engine (or a
// restarted one before the sweep) from double-polling a campground.
func (s *Store) SetJobPolling(ctx context.Context, campgroundID string, polling bool) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE polling_jobs SET is_being_polled=?, updated_at=now() WHERE campground_id=?
	`, polling, campgroundID)
	return err
}

// UpdateJobSuccess records a completed poll: errors reset, next run one
// frequency out.
func (s *Store) UpdateJobSuccess(ctx context.Context, campgroundID string, now time.Time, freqMinutes int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE polling_jobs
		SET last_polled=?, next_poll_at=?, consecutive_errors=0, is_being_polled=false, updated_at=now()
		WHERE campground_id=?
	`, now, now.Add(time.Duration(freqMinutes)*time.Minute), campgroundID)
	return err
}

// UpdateJobError records a failed poll with the new error count and the
// caller-chosen next attempt time (normal frequency, or the long backoff
// once the error ceiling is hit).
func (s *Store) UpdateJobError(ctx context.Context, campgroundID string, errorCount int, next, now time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE polling_jobs
		SET last_polled=?, next_poll_at=?, consecutive_errors=?, is_being_polled=false, updated_at=now()
		WHERE campground_id=?
	`, now, next, errorCount, campgroundID)
	return err
}

// RefreshPollingJobs reconciles polling_jobs against user_scans: every
// campground with at least one live scan gets a job (created due
// immediately), counts are kept current, and campgrounds whose scans all
// ended drop to zero so the selector skips them.
func (s *Store) RefreshPollingJobs(ctx context.Context, now time.Time, defaultFreqMinutes int) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO polling_jobs (campground_id, active_scan_count, next_poll_at, poll_frequency_minutes, updated_at)
		SELECT campground_id, count(*), ?::TIMESTAMP, ?::INTEGER, now()
		FROM user_scans
		WHERE status='active'
		  AND (expires_at IS NULL OR expires_at > ?)
		  AND check_out_date >= ?
		GROUP BY campground_id
		ON CONFLICT (campground_id) DO UPDATE
		SET active_scan_count = EXCLUDED.active_scan_count,
		    updated_at = now()
	`, now, defaultFreqMinutes, now, normalizeDay(now)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE polling_jobs SET active_scan_count=0, updated_at=now()
		WHERE active_scan_count > 0
		  AND campground_id NOT IN (
			SELECT campground_id FROM user_scans
			WHERE status='active'
			  AND (expires_at IS NULL OR expires_at > ?)
			  AND check_out_date >= ?
		)
	`, now, normalizeDay(now)); err != nil {
		return err
	}

	return tx.Commit()
}

// SweepStaleClaims clears claim flags older than the threshold. Run at
// startup and periodically; a crash mid-poll otherwise leaves the job
// claimed forever.
func (s *Store) SweepStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE polling_jobs SET is_being_polled=false, updated_at=now()
		WHERE is_being_polled AND updated_at < ?
	`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountActiveJobs returns the number of jobs with at least one live scan.
func (s *Store) CountActiveJobs(ctx context.Context) (int64, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT coalesce(count(*),0) FROM polling_jobs WHERE active_scan_count > 0
	`)
	var n int64
	return n, row.Scan(&n)
}
