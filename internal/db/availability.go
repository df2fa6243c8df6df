package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"github.com/campwatch/campwatch/internal/upstream"
)

// WriteSnapshot upserts one availability row per date in the snapshot.
// A successful write clears any earlier error on the same (campground,
// date). The full per-site detail rides along as JSON so notifications
// can name sites without another fetch.
func (s *Store) WriteSnapshot(ctx context.Context, snap upstream.CampgroundAvailability) error {
	byDate := map[time.Time][]upstream.SiteAvailability{}
	for _, site := range snap.Sites {
		d := normalizeDay(site.Date)
		byDate[d] = append(byDate[d], site)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campground_availability
			(campground_id, date, available_sites, total_sites, availability_data, last_checked, check_status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, 'success', NULL)
		ON CONFLICT (campground_id, date) DO UPDATE
		SET available_sites = EXCLUDED.available_sites,
		    total_sites = EXCLUDED.total_sites,
		    availability_data = EXCLUDED.availability_data,
		    last_checked = EXCLUDED.last_checked,
		    check_status = 'success',
		    error_message = NULL
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for d, sites := range byDate {
		available := 0
		for _, site := range sites {
			if site.Available {
				available++
			}
		}
		payload, err := json.Marshal(sites)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, snap.CampgroundID, d, available, snap.TotalSites, string(payload), snap.CheckedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// WriteAvailabilityError marks one (campground, date) as failed without
// touching the last good site data.
func (s *Store) WriteAvailabilityError(ctx context.Context, campgroundID string, date, now time.Time, msg string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO campground_availability
			(campground_id, date, available_sites, total_sites, availability_data, last_checked, check_status, error_message)
		VALUES (?, ?, 0, 0, NULL, ?, 'error', ?)
		ON CONFLICT (campground_id, date) DO UPDATE
		SET last_checked = EXCLUDED.last_checked,
		    check_status = 'error',
		    error_message = EXCLUDED.error_message
	`, campgroundID, normalizeDay(date), now, msg)
	return err
}

// ReadAvailabilityRange returns the last successful snapshot per date in
// [from, to] inclusive. Dates never checked, or whose latest check failed,
// are absent from the map.
func (s *Store) ReadAvailabilityRange(ctx context.Context, campgroundID string, from, to time.Time) (map[time.Time][]upstream.SiteAvailability, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT date, availability_data
		FROM campground_availability
		WHERE campground_id=? AND date BETWEEN ? AND ? AND check_status='success'
	`, campgroundID, normalizeDay(from), normalizeDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[time.Time][]upstream.SiteAvailability{}
	for rows.Next() {
		var date time.Time
		var payload sql.NullString
		if err := rows.Scan(&date, &payload); err != nil {
			return nil, err
		}
		var sites []upstream.SiteAvailability
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &sites); err != nil {
				return nil, err
			}
		}
		out[normalizeDay(date)] = sites
	}
	return out, rows.Err()
}

// AvailabilityByDate is the per-date rollup served on the status API.
type AvailabilityByDate struct {
	Date        time.Time `json:"date"`
	Available   int       `json:"available_sites"`
	Total       int       `json:"total_sites"`
	LastChecked time.Time `json:"last_checked"`
	Status      string    `json:"check_status"`
}

// ListAvailabilityByDate returns the per-date counts in [from, to].
func (s *Store) ListAvailabilityByDate(ctx context.Context, campgroundID string, from, to time.Time) ([]AvailabilityByDate, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT date, available_sites, total_sites, last_checked, check_status
		FROM campground_availability
		WHERE campground_id=? AND date BETWEEN ? AND ?
		ORDER BY date
	`, campgroundID, normalizeDay(from), normalizeDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AvailabilityByDate{}
	for rows.Next() {
		var a AvailabilityByDate
		if err := rows.Scan(&a.Date, &a.Available, &a.Total, &a.LastChecked, &a.Status); err != nil {
			return nil, err
		}
		a.Date = normalizeDay(a.Date)
		out = append(out, a)
	}
	return out, rows.Err()
}
