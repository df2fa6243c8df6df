package db

import "context"

// StatsToday returns active scans, polls today, and sent notifications
// today, for the status endpoint and the nightly summary.
func (s *Store) StatsToday(ctx context.Context) (active int64, polls int64, notes int64, err error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT coalesce((SELECT count(*) FROM user_scans WHERE status='active'),0),
		       coalesce((SELECT count(*) FROM polling_jobs WHERE last_polled::DATE=current_date),0),
		       coalesce((SELECT count(*) FROM notifications WHERE status='sent' AND sent_at::DATE=current_date),0)
	`)
	err = row.Scan(&active, &polls, &notes)
	return
}

// InsertDailySummarySnapshot aggregates and inserts today's snapshot into
// daily_summary. Run nightly from cron.
func (s *Store) InsertDailySummarySnapshot(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO daily_summary(date, active_scans, polls, notifications, created_at)
		SELECT current_date,
			(SELECT count(*) FROM user_scans WHERE status='active'),
			(SELECT count(*) FROM polling_jobs WHERE last_polled::DATE=current_date),
			(SELECT count(*) FROM notifications WHERE status='sent' AND sent_at::DATE=current_date),
			now()
	`)
	return err
}
