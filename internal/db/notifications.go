package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordNotification inserts one delivery attempt and returns the
// generated id. Both successes and failures get a row; the status column
// tells them apart.
func (s *Store) RecordNotification(ctx context.Context, n NotificationRecord) (string, error) {
	id := uuid.NewString()
	var sentAt any
	if n.SentAt.Valid {
		sentAt = n.SentAt.Time
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO notifications
			(id, user_id, user_scan_id, type, recipient, subject, message, availability_details, status, sent_at, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, now())
	`, id, n.UserID, n.UserScanID, n.Type, n.Recipient, n.Subject, n.Message, n.AvailabilityDetails, n.Status, sentAt, n.ExternalID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListNotificationsForScan returns a scan's delivery attempts, newest first.
func (s *Store) ListNotificationsForScan(ctx context.Context, scanID string) ([]NotificationRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, coalesce(user_scan_id, ''), type, recipient, coalesce(subject, ''),
		       message, coalesce(availability_details, ''), status, sent_at, coalesce(external_id, ''), created_at
		FROM notifications
		WHERE user_scan_id=?
		ORDER BY created_at DESC
	`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NotificationRecord
	for rows.Next() {
		var n NotificationRecord
		if err := rows.Scan(&n.ID, &n.UserID, &n.UserScanID, &n.Type, &n.Recipient, &n.Subject,
			&n.Message, &n.AvailabilityDetails, &n.Status, &n.SentAt, &n.ExternalID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNotificationsSince counts sent notifications after the cutoff.
func (s *Store) CountNotificationsSince(ctx context.Context, since time.Time) (int64, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT coalesce(count(*),0) FROM notifications WHERE status='sent' AND sent_at >= ?
	`, since)
	var n int64
	return n, row.Scan(&n)
}
