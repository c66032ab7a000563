package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// Messenger implements notification delivery over the Discord REST API.
type Messenger struct {
	session *discordgo.Session
}

func NewMessenger(session *discordgo.Session) *Messenger {
	return &Messenger{session: session}
}

// ResolveChannel checks that the destination channel still exists and is
// visible to the bot. Returns domain.ErrChannelNotFound for a deleted channel
// or revoked access, so callers can tell stale configuration from transport
// failures.
func (m *Messenger) ResolveChannel(ctx context.Context, channelID string) error {
	_, err := m.session.Channel(channelID, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
			return domain.ErrChannelNotFound
		}
	}
	return err
}

// Send posts a message to the channel.
func (m *Messenger) Send(ctx context.Context, channelID, content string) error {
	_, err := m.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}
