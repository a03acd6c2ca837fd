// Command live-notifier watches a list of Twitch channels and posts a one-time
// Discord message when one of them goes live.
// It:
//   - Loads configuration and initializes structured logging (stdout + log file).
//   - Connects the Discord bot and waits for the gateway Ready event.
//   - Acquires a Twitch app access token (client credentials).
//   - Optionally opens Postgres for the notification log.
//   - Runs the polling loop and a small HTTP server with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM. Any fatal startup error or loop
// termination exits with status 1.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/live-notifier/config"
	"github.com/onnwee/live-notifier/db"
	"github.com/onnwee/live-notifier/discord"
	"github.com/onnwee/live-notifier/notify"
	"github.com/onnwee/live-notifier/server"
	"github.com/onnwee/live-notifier/telemetry"
	"github.com/onnwee/live-notifier/twitchapi"
	"github.com/onnwee/live-notifier/version"
)

const serviceName = "live-notifier"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}

	closeLog, err := telemetry.SetupLogging(cfg.LogLevel, cfg.LogFormat, cfg.LogFile())
	if err != nil {
		slog.Error("logging setup failed", slog.Any("err", err))
		return 1
	}
	defer func() { _ = closeLog() }()

	slog.Info("starting", slog.String("version", version.Version), slog.String("commit", version.Commit))

	telemetry.Init()
	telemetry.SetWatched(len(cfg.Watchlist))

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(serviceName, version.Version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chat, err := discord.New(cfg.DiscordToken, slog.Default().With(slog.String("component", "discord")))
	if err != nil {
		slog.Error("discord client init failed", slog.Any("err", err))
		return 1
	}
	if err := chat.Open(ctx, cfg.DiscordReadyTimeout); err != nil {
		slog.Error("discord connect failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		if err := chat.Close(); err != nil {
			slog.Warn("discord close failed", slog.Any("err", err))
		}
	}()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	tokens := &twitchapi.TokenSource{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		HTTPClient:   httpClient,
	}
	tokCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	tok, err := tokens.Get(tokCtx)
	cancel()
	if err != nil {
		slog.Error("twitch app token fetch failed", slog.Any("err", err))
		return 1
	}
	if len(tok) > 6 {
		slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
	}

	helix := &twitchapi.HelixClient{
		AppTokenSource: tokens,
		ClientID:       cfg.TwitchClientID,
		HTTPClient:     httpClient,
	}
	warnUnknownLogins(ctx, helix, cfg.Watchlist)

	loopCfg := notify.Config{
		Watchlist:     cfg.Watchlist,
		DestinationID: cfg.NotificationChannel,
		Interval:      cfg.PollInterval,
		Logger:        slog.Default().With(slog.String("component", "notify")),
	}
	var history server.NotificationHistory
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		nlog := db.NewNotificationLog(database)
		loopCfg.Recorder = nlog
		history = nlog
	} else {
		slog.Info("DB_DSN not set; notification log disabled")
	}

	loop := notify.New(&notify.HelixFetcher{Streams: helix, Logger: loopCfg.Logger}, chat, loopCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if cfg.HTTPEnabled() {
		handler := server.NewMux(server.NewHandlers(loop, chat, history))
		g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, handler) })
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, notify.ErrDestinationUnavailable) {
			slog.Error("notification loop stopped: destination unavailable", slog.Any("err", err))
		} else {
			slog.Error("service stopped with error", slog.Any("err", err))
		}
		return 1
	}
	slog.Info("shutting down")
	return 0
}

// warnUnknownLogins logs watchlist entries Twitch does not know. Failures are only logged.
func warnUnknownLogins(ctx context.Context, helix *twitchapi.HelixClient, watchlist []string) {
	if len(watchlist) == 0 {
		return
	}
	users, err := helix.GetUsers(ctx, watchlist...)
	if err != nil {
		slog.Warn("watchlist validation skipped", slog.Any("err", err))
		return
	}
	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.Login] = struct{}{}
	}
	for _, login := range watchlist {
		if _, ok := known[login]; !ok {
			slog.Warn("watchlist entry is not a known twitch login", slog.String("login", login))
		}
	}
}
