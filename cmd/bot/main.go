package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/ArchonCollection/StreamPing/internal/config"
	"github.com/ArchonCollection/StreamPing/internal/database"
	"github.com/ArchonCollection/StreamPing/internal/discord"
	"github.com/ArchonCollection/StreamPing/internal/logging"
	"github.com/ArchonCollection/StreamPing/internal/notify"
	"github.com/ArchonCollection/StreamPing/internal/server"
	"github.com/ArchonCollection/StreamPing/internal/subscriptions"
	"github.com/ArchonCollection/StreamPing/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func runGracefulShutdown(srv *server.Server, bot *discord.Bot) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if err := bot.Stop(); err != nil {
			slog.Error("Discord session close error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	repo := database.NewSubscriptionRepo(pool)

	tokens := twitch.NewAppTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TokenStatePath, clock)

	client, err := twitch.NewClient(cfg.TwitchClientID, tokens)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}

	eventsubMgr := twitch.NewEventSubManager(client, repo, cfg.WebhookCallbackURL, cfg.WebhookSecret)

	// A fresh token may invalidate webhook subscriptions tied to the old one;
	// sweep every subscribed broadcaster after each refresh.
	tokens.SetOnRefresh(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		eventsubMgr.ReconcileAll(ctx)
	})

	limiter := subscriptions.NewLimiter(repo, cfg.MaxSubscriptionsPerGuild)
	svc := subscriptions.NewService(repo, limiter, client, eventsubMgr)
	throttle := subscriptions.NewGuildThrottle(clock)

	registry := discord.NewRegistry(svc, throttle)
	bot, err := discord.NewBot(cfg.DiscordBotToken, cfg.DiscordAppID, registry)
	if err != nil {
		slog.Error("Failed to create Discord bot", "error", err)
		os.Exit(1)
	}

	messenger := discord.NewMessenger(bot.Session())
	dispatcher := notify.NewDispatcher(repo, messenger, eventsubMgr, clock, cfg.NotificationSendDelay, cfg.OutboundTimeout)

	webhook := twitch.NewWebhookHandler(cfg.WebhookSecret, dispatcher)
	srv := server.NewServer(cfg, webhook, pool)

	if err := bot.Start(); err != nil {
		slog.Error("Failed to start Discord bot", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, bot)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
