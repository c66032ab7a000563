package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the streaming platform a subscription watches.
type Platform string

const (
	PlatformTwitch  Platform = "TWITCH"
	PlatformYouTube Platform = "YOUTUBE"
)

// ParsePlatform maps a user-supplied platform name to a Platform.
// Returns false for anything unknown.
func ParsePlatform(s string) (Platform, bool) {
	switch s {
	case "twitch", "TWITCH":
		return PlatformTwitch, true
	case "youtube", "YOUTUBE":
		return PlatformYouTube, true
	}
	return "", false
}

// Label returns the display form of the platform, e.g. "Twitch".
func (p Platform) Label() string {
	switch p {
	case PlatformTwitch:
		return "Twitch"
	case PlatformYouTube:
		return "YouTube"
	}
	return string(p)
}

// Subscription records that a guild wants live notifications for an external
// broadcaster delivered to a Discord channel, optionally mentioning a role.
type Subscription struct {
	ID                   uuid.UUID
	GuildID              string
	Platform             Platform
	ExternalChannelID    string
	ExternalChannelName  string
	DestinationChannelID string
	DestinationRoleID    string // empty means no role mention
	CreatedAt            time.Time
}

// SubscriptionStore is the durable system of record for subscriptions.
// Implementations must return ErrSubscriptionNotFound for lookups and deletes
// that match no row, distinct from transport errors.
type SubscriptionStore interface {
	// UpsertGuild ensures a guild row exists. Guilds have no lifecycle of
	// their own beyond anchoring subscriptions.
	UpsertGuild(ctx context.Context, guildID string) error

	Create(ctx context.Context, sub Subscription) error

	// Delete removes the subscription identified by the unique
	// (guild, platform, external channel) tuple.
	Delete(ctx context.Context, guildID string, platform Platform, externalChannelID string) (Subscription, error)

	FindByGuild(ctx context.Context, guildID string) ([]Subscription, error)
	FindByExternalChannel(ctx context.Context, platform Platform, externalChannelID string) ([]Subscription, error)

	// DistinctExternalChannels returns every external channel id referenced by
	// at least one subscription on the given platform, each id once.
	DistinctExternalChannels(ctx context.Context, platform Platform) ([]string, error)

	CountByGuild(ctx context.Context, guildID string) (int, error)
}

// ChannelInfo is the external platform's view of a broadcaster channel,
// fetched when a subscription is created.
type ChannelInfo struct {
	ID              string
	Login           string
	DisplayName     string
	Description     string
	ProfileImageURL string
}
