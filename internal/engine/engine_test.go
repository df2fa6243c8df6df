package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/upstream"
)

type captureNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	campgroundID string
	scans        []db.UserScan
	newSites     []upstream.SiteAvailability
}

func (c *captureNotifier) NotifyScans(ctx context.Context, campgroundID string, scans []db.UserScan, snapshot upstream.CampgroundAvailability, newSites []upstream.SiteAvailability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, notifyCall{campgroundID: campgroundID, scans: scans, newSites: newSites})
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type captureAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureAlerter) Notify(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

// fakeUpstream serves the warm-up root and a scripted availability payload.
type fakeUpstream struct {
	mu     sync.Mutex
	status int
	body   string
	polls  int
}

func (f *fakeUpstream) set(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
}

func (f *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/camps/availability/") {
			w.WriteHeader(http.StatusOK) // session warm-up
			return
		}
		f.mu.Lock()
		status, body := f.status, f.body
		f.polls++
		f.mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, "upstream error", status)
			return
		}
		fmt.Fprint(w, body)
	})
}

func (f *fakeUpstream) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func availabilityBody(siteID, date, status string) string {
	return fmt.Sprintf(`{"campsites":{"%s":{"availabilities":{"%sT00:00:00Z":"%s"},"campsite_type":"STANDARD","loop":"A"}}}`,
		siteID, date, status)
}

type testEngine struct {
	engine   *Engine
	store    *db.Store
	upstream *fakeUpstream
	notifier *captureNotifier
	alerter  *captureAlerter
	governor *Governor
}

func newTestEngine(t *testing.T, maxPerHour int) *testEngine {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.duckdb"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fake := &fakeUpstream{status: http.StatusOK, body: `{"campsites":{}}`}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	sessionCfg := upstream.DefaultSessionConfig()
	sessionCfg.BaseURL = srv.URL
	session := upstream.NewSession(srv.Client(), sessionCfg, nil)
	client := upstream.NewClient(srv.Client(), session, upstream.ClientConfig{InternalBaseURL: srv.URL, RIDBBaseURL: srv.URL}, nil)

	governor := NewGovernor(time.Millisecond, maxPerHour)
	notifier := &captureNotifier{}
	alerter := &captureAlerter{}
	cfg := Config{
		CheckInterval:        time.Hour, // ticks driven manually
		DefaultPollFrequency: 15 * time.Minute,
		MaxConsecutiveErrors: 3,
		ErrorBackoff:         time.Hour,
		SpawnDelay:           time.Millisecond,
	}
	eng := New(store, client, session, governor, notifier, alerter, cfg, nil)
	return &testEngine{engine: eng, store: store, upstream: fake, notifier: notifier, alerter: alerter, governor: governor}
}

func seedScan(t *testing.T, store *db.Store, campgroundID string, checkIn, checkOut time.Time) string {
	t.Helper()
	ctx := context.Background()
	userID, err := store.CreateUser(ctx, "camper@example.com", "Camper", "", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	scanID, err := store.CreateScan(ctx, userID, campgroundID, checkIn, checkOut, nil)
	if err != nil {
		t.Fatalf("create scan: %v", err)
	}
	return scanID
}

// futureWindow picks a mid-month window two months out so the fetch never
// straddles a month boundary regardless of today's date.
func futureWindow() (time.Time, time.Time) {
	base := time.Now().UTC().AddDate(0, 2, 0)
	checkIn := time.Date(base.Year(), base.Month(), 10, 0, 0, 0, 0, time.UTC)
	return checkIn, checkIn.AddDate(0, 0, 2)
}

func TestEngineFullPollCycle(t *testing.T) {
	te := newTestEngine(t, 1000)
	ctx := context.Background()
	checkIn, checkOut := futureWindow()
	te.upstream.set(http.StatusOK, availabilityBody("101", checkIn.Format("2006-01-02"), "Available"))

	seedScan(t, te.store, "232447", checkIn, checkOut)

	te.engine.tick(ctx)
	te.engine.WaitWorkers()

	if te.upstream.pollCount() == 0 {
		t.Fatal("upstream never polled")
	}
	if te.notifier.count() != 1 {
		t.Fatalf("notify calls = %d, want 1", te.notifier.count())
	}
	call := te.notifier.calls[0]
	if call.campgroundID != "232447" || len(call.newSites) != 1 || call.newSites[0].SiteID != "101" {
		t.Errorf("call = %+v", call)
	}

	job, ok, err := te.store.GetJob(ctx, "232447")
	if err != nil || !ok {
		t.Fatalf("job: ok=%v err=%v", ok, err)
	}
	if job.ConsecutiveErrors != 0 || job.IsBeingPolled {
		t.Errorf("job after success = %+v", job)
	}
	if !job.NextPollAt.After(time.Now().UTC().Add(10 * time.Minute)) {
		t.Errorf("next_poll_at not pushed out: %v", job.NextPollAt)
	}

	snap, err := te.store.ReadAvailabilityRange(ctx, "232447", checkIn, checkOut)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(snap[checkIn]) != 1 {
		t.Errorf("snapshot not persisted: %v", snap)
	}
}

func TestEngineFetchCoversCheckoutDate(t *testing.T) {
	te := newTestEngine(t, 1000)
	ctx := context.Background()
	checkIn, checkOut := futureWindow()
	te.upstream.set(http.StatusOK, availabilityBody("101", checkOut.Format("2006-01-02"), "Available"))

	seedScan(t, te.store, "232447", checkIn, checkOut)

	te.engine.tick(ctx)
	te.engine.WaitWorkers()

	// The fetch window runs through the checkout date, so the cache holds a
	// row for it even though the notifier never matches checkout-day sites.
	snap, err := te.store.ReadAvailabilityRange(ctx, "232447", checkIn, checkOut)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(snap[checkOut]) != 1 {
		t.Errorf("checkout date missing from cache: %v", snap)
	}
}

func TestEngineUnchangedAvailabilityNoNotify(t *testing.T) {
	te := newTestEngine(t, 1000)
	ctx := context.Background()
	checkIn, checkOut := futureWindow()
	te.upstream.set(http.StatusOK, availabilityBody("101", checkIn.Format("2006-01-02"), "Available"))

	seedScan(t, te.store, "232447", checkIn, checkOut)

	te.engine.tick(ctx)
	te.engine.WaitWorkers()
	if te.notifier.count() != 1 {
		t.Fatalf("first poll notify calls = %d", te.notifier.count())
	}

	// Force the job due again and poll the same payload.
	if _, err := te.store.DB.ExecContext(ctx, `UPDATE polling_jobs SET next_poll_at=?`, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("rewind job: %v", err)
	}
	te.engine.tick(ctx)
	te.engine.WaitWorkers()

	if te.notifier.count() != 1 {
		t.Errorf("unchanged availability still notified: %d calls", te.notifier.count())
	}
}

func TestEngineErrorBackoff(t *testing.T) {
	te := newTestEngine(t, 1000)
	ctx := context.Background()
	checkIn, checkOut := futureWindow()
	te.upstream.set(http.StatusInternalServerError, "")

	seedScan(t, te.store, "232447", checkIn, checkOut)

	for i := 0; i < 3; i++ {
		if _, err := te.store.DB.ExecContext(ctx, `UPDATE polling_jobs SET next_poll_at=?`, time.Now().UTC().Add(-time.Minute)); err != nil {
			t.Fatalf("rewind job: %v", err)
		}
		te.engine.tick(ctx)
		te.engine.WaitWorkers()
	}

	job, ok, err := te.store.GetJob(ctx, "232447")
	if err != nil || !ok {
		t.Fatalf("job: ok=%v err=%v", ok, err)
	}
	if job.ConsecutiveErrors != 3 {
		t.Fatalf("errors = %d, want 3", job.ConsecutiveErrors)
	}
	// At the ceiling the next attempt is pushed a full backoff out.
	if !job.NextPollAt.After(time.Now().UTC().Add(50 * time.Minute)) {
		t.Errorf("backoff not applied: next_poll_at = %v", job.NextPollAt)
	}
	if len(te.alerter.msgs) == 0 {
		t.Error("no alert on backoff")
	}

	// The tripped job must not be selected again.
	if _, err := te.store.DB.ExecContext(ctx, `UPDATE polling_jobs SET next_poll_at=?`, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("rewind job: %v", err)
	}
	polls := te.upstream.pollCount()
	te.engine.tick(ctx)
	te.engine.WaitWorkers()
	if te.upstream.pollCount() != polls {
		t.Error("tripped job polled again")
	}

	if te.notifier.count() != 0 {
		t.Errorf("failed polls produced notifications: %d", te.notifier.count())
	}
}

func TestEngineBudgetExhaustedDefersJobs(t *testing.T) {
	te := newTestEngine(t, 1)
	ctx := context.Background()
	checkIn, checkOut := futureWindow()
	te.upstream.set(http.StatusOK, `{"campsites":{}}`)

	seedScan(t, te.store, "232447", checkIn, checkOut)
	seedScan(t, te.store, "232450", checkIn, checkOut)

	te.engine.tick(ctx)
	te.engine.WaitWorkers()

	// Budget of one: only one campground polled, the other deferred with
	// an alert, and neither claim left dangling.
	if te.upstream.pollCount() != 1 {
		t.Fatalf("polls = %d, want 1", te.upstream.pollCount())
	}
	if len(te.alerter.msgs) == 0 {
		t.Error("no alert when budget tripped")
	}
	if te.engine.Stats().InFlight != 0 {
		t.Errorf("in-flight = %d after drain", te.engine.Stats().InFlight)
	}

	var claimed int
	if err := te.store.DB.QueryRowContext(ctx, `SELECT count(*) FROM polling_jobs WHERE is_being_polled`).Scan(&claimed); err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if claimed != 0 {
		t.Errorf("dangling claims = %d", claimed)
	}
}

func TestEngineSkipsJobWithoutScans(t *testing.T) {
	te := newTestEngine(t, 1000)
	ctx := context.Background()
	now := time.Now().UTC()

	// Job exists but its scans are gone: reconciliation zeroes the count
	// and the job is never dispatched.
	if _, err := te.store.DB.ExecContext(ctx, `
		INSERT INTO polling_jobs (campground_id, active_scan_count, next_poll_at)
		VALUES ('232447', 1, ?)
	`, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	te.engine.tick(ctx)
	te.engine.WaitWorkers()

	if te.upstream.pollCount() != 0 {
		t.Errorf("scanless job hit upstream %d times", te.upstream.pollCount())
	}
}
