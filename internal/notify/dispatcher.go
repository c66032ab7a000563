package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ArchonCollection/StreamPing/internal/domain"
	"github.com/ArchonCollection/StreamPing/internal/metrics"
)

// Messenger delivers messages to Discord channels. ResolveChannel must return
// domain.ErrChannelNotFound when the channel no longer exists or the bot lost
// access, distinct from transport errors.
type Messenger interface {
	ResolveChannel(ctx context.Context, channelID string) error
	Send(ctx context.Context, channelID, content string) error
}

// deregistrar removes upstream subscriptions for broadcasters nobody
// watches anymore.
type deregistrar interface {
	Deregister(ctx context.Context, broadcasterID string) error
}

// subscriptionSource looks up the subscriptions interested in a broadcaster.
type subscriptionSource interface {
	FindByExternalChannel(ctx context.Context, platform domain.Platform, externalChannelID string) ([]domain.Subscription, error)
}

// Dispatcher delivers a live event to every interested channel. Deliveries
// run concurrently and independently: one recipient failing (or resolving to
// a deleted channel) never affects the others.
type Dispatcher struct {
	store       subscriptionSource
	messenger   Messenger
	registrar   deregistrar
	clock       clockwork.Clock
	sendDelay   time.Duration
	sendTimeout time.Duration
}

func NewDispatcher(store subscriptionSource, messenger Messenger, registrar deregistrar, clock clockwork.Clock, sendDelay, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:       store,
		messenger:   messenger,
		registrar:   registrar,
		clock:       clock,
		sendDelay:   sendDelay,
		sendTimeout: sendTimeout,
	}
}

// Dispatch looks up every subscription for the event's broadcaster and sends
// the notification to each destination channel. It returns once every branch
// has completed or failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.LiveEvent) {
	subs, err := d.store.FindByExternalChannel(ctx, event.Platform, event.BroadcasterID)
	if err != nil {
		slog.Error("Failed to look up subscriptions for live event",
			"broadcaster_id", event.BroadcasterID, "error", err)
		return
	}

	if len(subs) == 0 {
		// Upstream still has a subscription nobody cares about; clean it up.
		slog.Info("Live event for broadcaster without subscriptions, deregistering",
			"broadcaster_id", event.BroadcasterID)
		if err := d.registrar.Deregister(ctx, event.BroadcasterID); err != nil {
			slog.Error("Failed to deregister stale broadcaster",
				"broadcaster_id", event.BroadcasterID, "error", err)
		}
		return
	}

	content := composeMessage(event)

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub domain.Subscription) {
			defer wg.Done()
			// Stagger sends to stay clear of Discord rate limits.
			d.clock.Sleep(time.Duration(i) * d.sendDelay)
			d.deliver(ctx, sub, content)
		}(i, sub)
	}
	wg.Wait()

	slog.Info("Live notification fan-out complete",
		"broadcaster_id", event.BroadcasterID, "recipients", len(subs))
}

// deliver sends the notification to a single subscription's channel. Failures
// are logged and counted, never propagated.
func (d *Dispatcher) deliver(ctx context.Context, sub domain.Subscription, content string) {
	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.messenger.ResolveChannel(sctx, sub.DestinationChannelID); err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			// The subscription is left in place: deleting user configuration
			// on what may be a transient permission problem is worse than a
			// missed notification.
			slog.Warn("Destination channel unresolvable, skipping recipient",
				"guild_id", sub.GuildID, "channel_id", sub.DestinationChannelID)
		} else {
			slog.Error("Failed to resolve destination channel",
				"guild_id", sub.GuildID, "channel_id", sub.DestinationChannelID, "error", err)
		}
		metrics.NotificationsSentTotal.WithLabelValues("skipped").Inc()
		return
	}

	if sub.DestinationRoleID != "" {
		content = fmt.Sprintf("<@&%s> %s", sub.DestinationRoleID, content)
	}

	if err := d.messenger.Send(sctx, sub.DestinationChannelID, content); err != nil {
		slog.Error("Failed to send live notification",
			"guild_id", sub.GuildID, "channel_id", sub.DestinationChannelID, "error", err)
		metrics.NotificationsSentTotal.WithLabelValues("failed").Inc()
		return
	}

	metrics.NotificationsSentTotal.WithLabelValues("sent").Inc()
}

func composeMessage(event domain.LiveEvent) string {
	name := event.BroadcasterDisplayName
	if name == "" {
		name = event.BroadcasterLogin
	}
	return fmt.Sprintf("**%s** is now live! https://www.twitch.tv/%s", name, event.BroadcasterLogin)
}
