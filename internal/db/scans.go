package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ListEligibleScans returns the live scans for one campground: active,
// unexpired, and not entirely in the past. A scan checking out today is
// still returned so a same-day cancellation can be caught.
func (s *Store) ListEligibleScans(ctx context.Context, campgroundID string, now time.Time) ([]UserScan, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, campground_id, check_in_date, check_out_date, nights,
		       status, notification_sent, created_at, updated_at, expires_at
		FROM user_scans
		WHERE campground_id=?
		  AND status='active'
		  AND (expires_at IS NULL OR expires_at > ?)
		  AND check_out_date >= ?
		ORDER BY check_in_date
	`, campgroundID, now, normalizeDay(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserScan
	for rows.Next() {
		var sc UserScan
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.CampgroundID, &sc.CheckIn, &sc.CheckOut, &sc.Nights,
			&sc.Status, &sc.NotificationSent, &sc.CreatedAt, &sc.UpdatedAt, &sc.ExpiresAt); err != nil {
			return nil, err
		}
		sc.CheckIn = normalizeDay(sc.CheckIn)
		sc.CheckOut = normalizeDay(sc.CheckOut)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// MarkNotificationSent sets the scan's latch so later polls don't notify
// the same scan again.
func (s *Store) MarkNotificationSent(ctx context.Context, scanID string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE user_scans SET notification_sent=true, updated_at=now() WHERE id=?
	`, scanID)
	return err
}

// CreateScan inserts a scan on behalf of the account service. Returns the
// generated id.
func (s *Store) CreateScan(ctx context.Context, userID, campgroundID string, checkIn, checkOut time.Time, expiresAt *time.Time) (string, error) {
	id := uuid.NewString()
	checkIn = normalizeDay(checkIn)
	checkOut = normalizeDay(checkOut)
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO user_scans (id, user_id, campground_id, check_in_date, check_out_date, nights, status, notification_sent, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', false, now(), now(), ?)
	`, id, userID, campgroundID, checkIn, checkOut, nights, expires)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateUser inserts a user row. prefs nil means both channels on.
func (s *Store) CreateUser(ctx context.Context, email, name, phone string, prefs *Preferences) (string, error) {
	id := uuid.NewString()
	var prefsJSON sql.NullString
	if prefs != nil {
		b, err := marshalPreferences(*prefs)
		if err != nil {
			return "", err
		}
		prefsJSON = sql.NullString{String: b, Valid: true}
	}
	var phoneVal sql.NullString
	if phone != "" {
		phoneVal = sql.NullString{String: phone, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, name, phone, email_verified, phone_verified, notification_preferences, is_active, created_at)
		VALUES (?, ?, ?, ?, true, ?, ?, true, now())
	`, id, email, name, phoneVal, phone != "", prefsJSON)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUser fetches one user; the bool reports whether they exist.
func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, email, coalesce(name, ''), phone, email_verified, phone_verified, notification_preferences, is_active
		FROM users WHERE id=?
	`, id)
	var u User
	var phone, prefs sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &phone, &u.EmailVerified, &u.PhoneVerified, &prefs, &u.IsActive)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	u.Phone = phone.String
	u.Preferences = parsePreferences(prefs)
	return u, true, nil
}

// Metadata

func (s *Store) UpsertCampground(ctx context.Context, c Campground) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO campgrounds (id, name, state_code, lat, lon)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.StateCode, c.Lat, c.Lon)
	return err
}

// GetCampgroundName returns the stored name, or a placeholder when the
// campground was never synced.
func (s *Store) GetCampgroundName(ctx context.Context, id string) string {
	row := s.DB.QueryRowContext(ctx, `SELECT name FROM campgrounds WHERE id=?`, id)
	var name string
	if err := row.Scan(&name); err != nil || name == "" {
		return "Unknown Campground"
	}
	return name
}
