package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/metrics"
	"github.com/campwatch/campwatch/internal/upstream"
)

// Notifier matches newly opened sites against scans and delivers over the
// user's enabled channels, recording every attempt.
type Notifier struct {
	store  *db.Store
	email  EmailTransport
	sms    SMSTransport
	logger *slog.Logger
}

func New(store *db.Store, email EmailTransport, sms SMSTransport, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{store: store, email: email, sms: sms, logger: logger}
}

// NotifyScans processes one poll's new sites for every eligible scan. A
// scan whose latch is already set, or whose window the new sites miss, is
// skipped. One scan's failure doesn't stop the others; the first error is
// returned after the loop.
func (n *Notifier) NotifyScans(ctx context.Context, campgroundID string, scans []db.UserScan, snapshot upstream.CampgroundAvailability, newSites []upstream.SiteAvailability) error {
	campgroundName := n.store.GetCampgroundName(ctx, campgroundID)

	var firstErr error
	for _, scan := range scans {
		if scan.NotificationSent {
			continue
		}
		matched := sitesInWindow(newSites, scan.CheckIn, scan.CheckOut)
		if len(matched) == 0 {
			continue
		}
		if err := n.notifyScan(ctx, scan, campgroundName, snapshot, matched); err != nil {
			n.logger.Error("scan notification failed",
				slog.String("scan", scan.ID), slog.String("err", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sitesInWindow filters to sites dated within [checkIn, checkOut). The
// checkout day itself doesn't need a site.
func sitesInWindow(sites []upstream.SiteAvailability, checkIn, checkOut time.Time) []upstream.SiteAvailability {
	var out []upstream.SiteAvailability
	for _, site := range sites {
		if site.Date.Before(checkIn) || !site.Date.Before(checkOut) {
			continue
		}
		out = append(out, site)
	}
	return out
}

// notifyScan delivers to one scan's user: email first, then SMS. A failed
// channel stops the remaining ones for this scan; the next poll's diff
// won't re-fire, but the failure rows make the gap visible.
func (n *Notifier) notifyScan(ctx context.Context, scan db.UserScan, campgroundName string, snapshot upstream.CampgroundAvailability, matched []upstream.SiteAvailability) error {
	user, ok, err := n.store.GetUser(ctx, scan.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !ok || !user.IsActive {
		n.logger.Warn("scan has no active user, skipping", slog.String("scan", scan.ID))
		return nil
	}

	details, err := json.Marshal(matched)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	anySent := false

	if user.Preferences.Email && user.EmailVerified && user.Email != "" {
		subject, body := composeEmail(scan, campgroundName, matched)
		externalID, sendErr := n.email.Send(ctx, user.Email, subject, body)
		n.record(ctx, scan, user, "email", user.Email, subject, body, string(details), externalID, sendErr)
		if sendErr != nil {
			return fmt.Errorf("email to %s: %w", user.Email, sendErr)
		}
		anySent = true
	}

	if user.Preferences.SMS && user.Phone != "" && user.PhoneVerified {
		message := composeSMS(scan, campgroundName, snapshot)
		externalID, sendErr := n.sms.Send(ctx, user.Phone, message)
		n.record(ctx, scan, user, "sms", user.Phone, "", message, string(details), externalID, sendErr)
		if sendErr != nil {
			if anySent {
				n.latch(ctx, scan.ID)
			}
			return fmt.Errorf("sms to %s: %w", user.Phone, sendErr)
		}
		anySent = true
	}

	if anySent {
		n.latch(ctx, scan.ID)
	}
	return nil
}

func (n *Notifier) latch(ctx context.Context, scanID string) {
	if err := n.store.MarkNotificationSent(ctx, scanID); err != nil {
		n.logger.Error("set notification latch failed",
			slog.String("scan", scanID), slog.String("err", err.Error()))
	}
}

// record writes one delivery attempt, sent or failed.
func (n *Notifier) record(ctx context.Context, scan db.UserScan, user db.User, typ, recipient, subject, message, details, externalID string, sendErr error) {
	rec := db.NotificationRecord{
		UserID:              user.ID,
		UserScanID:          scan.ID,
		Type:                typ,
		Recipient:           recipient,
		Subject:             subject,
		Message:             message,
		AvailabilityDetails: details,
		ExternalID:          externalID,
	}
	if sendErr == nil {
		rec.Status = "sent"
		rec.SentAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	} else {
		rec.Status = "failed"
	}
	metrics.IncNotification(typ, rec.Status)
	if _, err := n.store.RecordNotification(ctx, rec); err != nil {
		n.logger.Error("record notification failed",
			slog.String("scan", scan.ID), slog.String("err", err.Error()))
	}
}
