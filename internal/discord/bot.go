package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Bot owns the Discord gateway session.
type Bot struct {
	session  *discordgo.Session
	registry *Registry
	appID    string
}

func NewBot(token, appID string, registry *Registry) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord session ready", "user", r.User.Username)
		if err := s.UpdateWatchStatus(0, "for new pings"); err != nil {
			slog.Warn("Failed to set presence", "error", err)
		}
	})
	session.AddHandler(registry.HandleInteraction)

	return &Bot{
		session:  session,
		registry: registry,
		appID:    appID,
	}, nil
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.appID, "", b.registry.Definitions()); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	slog.Info("Commands registered", "count", len(b.registry.Definitions()))

	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

// Session exposes the underlying session for the messenger.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}
