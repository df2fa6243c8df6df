package main

import (
	"context"
	"log/slog"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/campwatch/campwatch/internal/alert"
	"github.com/campwatch/campwatch/internal/config"
	"github.com/campwatch/campwatch/internal/db"
	"github.com/campwatch/campwatch/internal/engine"
	"github.com/campwatch/campwatch/internal/httpx"
	"github.com/campwatch/campwatch/internal/notify"
	"github.com/campwatch/campwatch/internal/upstream"
	"github.com/campwatch/campwatch/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	// Simple CLI handling for the campground sync command
	if len(os.Args) >= 2 && os.Args[1] == "sync" {
		handleSyncCommand(ctx, cfg)
		return
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	// Claims left behind by a previous crash would block their campgrounds.
	if n, err := store.SweepStaleClaims(ctx, time.Now().UTC()); err != nil {
		slog.Error("startup claim sweep failed", slog.Any("err", err))
		os.Exit(1)
	} else if n > 0 {
		slog.Warn("cleared stale polling claims from previous run", slog.Int64("count", n))
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		slog.Error("cookie jar failed", slog.Any("err", err))
		os.Exit(1)
	}
	httpClient := httpx.NewClient(jar)

	sessionCfg := upstream.DefaultSessionConfig()
	sessionCfg.ValidationInterval = cfg.SessionValidationInterval
	sessionCfg.MaxFailures = cfg.SessionMaxFailures
	session := upstream.NewSession(httpClient, sessionCfg, slog.Default())

	clientCfg := upstream.DefaultClientConfig()
	clientCfg.APIKey = cfg.RecreationGovAPIKey
	client := upstream.NewClient(httpClient, session, clientCfg, slog.Default())

	governor := engine.NewGovernor(cfg.MinAPIInterval, cfg.MaxCallsPerHour)
	notifier := notify.New(store, buildEmail(cfg), buildSMS(cfg), slog.Default())
	alerter := alert.New(cfg.DiscordToken, cfg.DiscordChannelID, slog.Default())
	defer alerter.Close()

	eng := engine.New(store, client, session, governor, notifier, alerter, engine.Config{
		CheckInterval:        cfg.PollCheckInterval,
		DefaultPollFrequency: cfg.DefaultPollFrequency,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		ErrorBackoff:         cfg.ErrorBackoff,
		ClaimTimeout:         cfg.ClaimTimeout,
	}, slog.Default())

	scheduler := cron.New(cron.WithLocation(mustLoadLocation("America/Los_Angeles")))
	scheduler.AddFunc("0 22 * * *", func() {
		if err := store.InsertDailySummarySnapshot(context.Background()); err != nil {
			slog.Error("daily summary failed", slog.Any("err", err))
			return
		}
		active, polls, notes, err := store.StatsToday(context.Background())
		if err != nil {
			slog.Error("daily summary stats failed", slog.Any("err", err))
			return
		}
		slog.Info("daily summary", slog.Int64("active_scans", active), slog.Int64("polls", polls), slog.Int64("notifications", notes))
	})
	scheduler.AddFunc("*/10 * * * *", func() {
		eng.SweepInflight(time.Now().UTC())
		if n, err := store.SweepStaleClaims(context.Background(), time.Now().UTC().Add(-cfg.ClaimTimeout)); err != nil {
			slog.Error("claim sweep failed", slog.Any("err", err))
		} else if n > 0 {
			slog.Warn("cleared stale polling claims", slog.Int64("count", n))
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	webServer := web.NewServer(store, eng, governor, session, cfg.WebAddr, slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return webServer.Run(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("run failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// buildEmail selects SMTP when configured, otherwise the dev logger.
func buildEmail(cfg config.Config) notify.EmailTransport {
	if !cfg.EmailConfigured() {
		slog.Warn("SMTP not configured, emails will be logged only")
		return &notify.LogEmail{Logger: slog.Default()}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Protocol: cfg.SMTPProtocol,
		FromAddr: cfg.FromEmail,
		FromName: cfg.FromName,
	}, slog.Default())
}

// buildSMS selects Twilio when configured, otherwise the dev logger.
func buildSMS(cfg config.Config) notify.SMSTransport {
	if !cfg.SMSConfigured() {
		slog.Warn("Twilio not configured, SMS will be logged only")
		return &notify.LogSMS{Logger: slog.Default()}
	}
	return notify.NewTwilioSMS(notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, nil, slog.Default())
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("timezone load failed, using UTC", slog.String("tz", name))
		return time.UTC
	}
	return loc
}

// handleSyncCommand fetches campground metadata from RIDB into the local
// campgrounds table: campwatch sync --query yosemite [--state CA]
func handleSyncCommand(ctx context.Context, cfg config.Config) {
	query := ""
	state := ""
	activity := ""
	for i, arg := range os.Args {
		if arg == "--query" && i+1 < len(os.Args) {
			query = os.Args[i+1]
		}
		if arg == "--state" && i+1 < len(os.Args) {
			state = os.Args[i+1]
		}
		if arg == "--activity" && i+1 < len(os.Args) {
			activity = os.Args[i+1]
		}
	}
	if query == "" {
		slog.Error("--query required")
		os.Exit(1)
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	httpClient := httpx.NewClient(nil)
	clientCfg := upstream.DefaultClientConfig()
	clientCfg.APIKey = cfg.RecreationGovAPIKey
	client := upstream.NewClient(httpClient, nil, clientCfg, slog.Default())

	facilities, err := client.SearchFacilities(ctx, query, state, activity)
	if err != nil {
		slog.Error("facility search failed", slog.Any("err", err))
		os.Exit(1)
	}
	for _, f := range facilities {
		c := db.Campground{ID: f.FacilityID, Name: f.Name, StateCode: f.StateCode}
		if f.Latitude != nil {
			c.Lat = *f.Latitude
		}
		if f.Longitude != nil {
			c.Lon = *f.Longitude
		}
		if err := store.UpsertCampground(ctx, c); err != nil {
			slog.Error("upsert campground failed", slog.String("id", f.FacilityID), slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("synced campground", slog.String("id", f.FacilityID), slog.String("name", f.Name))
	}
	slog.Info("campground sync completed", slog.Int("count", len(facilities)))
}
