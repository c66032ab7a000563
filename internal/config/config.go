package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	DatabaseURL        string `env:"DATABASE_URL"`
	DiscordBotToken    string `env:"DISCORD_BOT_TOKEN"`
	DiscordAppID       string `env:"DISCORD_APP_ID"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	WebhookCallbackURL string `env:"WEBHOOK_CALLBACK_URL"`
	WebhookSecret      string `env:"WEBHOOK_SECRET"`
	TokenStatePath     string `env:"TOKEN_STATE_PATH" default:"twitch_token.json"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	MaxSubscriptionsPerGuild int           `env:"MAX_SUBSCRIPTIONS_PER_GUILD" default:"5"`
	NotificationSendDelay    time.Duration `env:"NOTIFICATION_SEND_DELAY" default:"250ms"`
	OutboundTimeout          time.Duration `env:"OUTBOUND_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"DISCORD_BOT_TOKEN":    cfg.DiscordBotToken,
		"DISCORD_APP_ID":       cfg.DiscordAppID,
		"TWITCH_CLIENT_ID":     cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET": cfg.TwitchClientSecret,
		"WEBHOOK_CALLBACK_URL": cfg.WebhookCallbackURL,
		"WEBHOOK_SECRET":       cfg.WebhookSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// Twitch rejects EventSub secrets outside this range.
	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return fmt.Errorf("WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if cfg.MaxSubscriptionsPerGuild < 1 {
		return fmt.Errorf("MAX_SUBSCRIPTIONS_PER_GUILD must be at least 1")
	}

	return nil
}
