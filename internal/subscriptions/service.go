package subscriptions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// channelLookup resolves an external channel by its login name.
type channelLookup interface {
	UserByLogin(ctx context.Context, login string) (*domain.ChannelInfo, error)
}

// registrar manages upstream push subscriptions.
type registrar interface {
	Register(ctx context.Context, broadcasterID string) error
	Deregister(ctx context.Context, broadcasterID string) error
}

// Service orchestrates the subscription lifecycle. The order of operations on
// subscribe matters: every local check runs before the upstream registration,
// and the local row is only created after registration succeeded, so local
// and upstream state never diverge on failure.
type Service struct {
	store     domain.SubscriptionStore
	limiter   *Limiter
	lookup    channelLookup
	registrar registrar
}

func NewService(store domain.SubscriptionStore, limiter *Limiter, lookup channelLookup, registrar registrar) *Service {
	return &Service{
		store:     store,
		limiter:   limiter,
		lookup:    lookup,
		registrar: registrar,
	}
}

// Subscribe registers guild interest in a broadcaster channel. Returns the
// resolved channel info for the confirmation reply.
func (s *Service) Subscribe(ctx context.Context, guildID string, platform domain.Platform, channelName, destinationChannelID, destinationRoleID string) (*domain.ChannelInfo, error) {
	if platform != domain.PlatformTwitch {
		return nil, domain.ErrPlatformUnsupported
	}

	if err := s.store.UpsertGuild(ctx, guildID); err != nil {
		return nil, fmt.Errorf("failed to upsert guild: %w", err)
	}

	if err := s.limiter.CheckCapacity(ctx, guildID); err != nil {
		return nil, err
	}

	info, err := s.lookup.UserByLogin(ctx, channelName)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.CheckDuplicate(ctx, guildID, platform, info.ID, info.DisplayName); err != nil {
		return nil, err
	}

	if err := s.registrar.Register(ctx, info.ID); err != nil {
		return nil, err
	}

	sub := domain.Subscription{
		ID:                   uuid.New(),
		GuildID:              guildID,
		Platform:             platform,
		ExternalChannelID:    info.ID,
		ExternalChannelName:  info.DisplayName,
		DestinationChannelID: destinationChannelID,
		DestinationRoleID:    destinationRoleID,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}

	slog.Info("Subscription created",
		"guild_id", guildID, "platform", platform, "broadcaster_id", info.ID)
	return info, nil
}

// Unsubscribe removes the guild's subscription to an external channel. When
// no subscription in any guild references the broadcaster afterwards, the
// upstream subscription is deregistered too; a deregistration failure is
// logged but not surfaced, since the local delete already succeeded.
func (s *Service) Unsubscribe(ctx context.Context, guildID string, platform domain.Platform, externalChannelID string) (domain.Subscription, error) {
	sub, err := s.store.Delete(ctx, guildID, platform, externalChannelID)
	if err != nil {
		return domain.Subscription{}, err
	}

	remaining, err := s.store.FindByExternalChannel(ctx, platform, externalChannelID)
	if err != nil {
		slog.Error("Failed to check remaining subscriptions after unsubscribe",
			"broadcaster_id", externalChannelID, "error", err)
		return sub, nil
	}

	if len(remaining) == 0 {
		if err := s.registrar.Deregister(ctx, externalChannelID); err != nil {
			slog.Error("Failed to deregister upstream subscription",
				"broadcaster_id", externalChannelID, "error", err)
		}
	}

	slog.Info("Subscription removed",
		"guild_id", guildID, "platform", platform, "broadcaster_id", externalChannelID)
	return sub, nil
}

// List returns the guild's current subscriptions.
func (s *Service) List(ctx context.Context, guildID string) ([]domain.Subscription, error) {
	return s.store.FindByGuild(ctx, guildID)
}
