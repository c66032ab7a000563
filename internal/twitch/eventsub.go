package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ArchonCollection/StreamPing/internal/domain"
	"github.com/ArchonCollection/StreamPing/internal/metrics"
)

// eventsubAPI is the subset of Client used by EventSubManager.
type eventsubAPI interface {
	CreateStreamOnlineSubscription(ctx context.Context, broadcasterID, callbackURL, secret string) error
	SubscriptionsForBroadcaster(ctx context.Context, broadcasterID string) ([]string, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// channelSource lists the distinct broadcasters currently referenced by any
// stored subscription.
type channelSource interface {
	DistinctExternalChannels(ctx context.Context, platform domain.Platform) ([]string, error)
}

// EventSubManager manages the lifecycle of upstream stream.online webhook
// subscriptions: registration on subscribe, reconciliation after a token
// rotation, and removal once no guild references a broadcaster.
type EventSubManager struct {
	api         eventsubAPI
	store       channelSource
	callbackURL string
	secret      string
}

func NewEventSubManager(api eventsubAPI, store channelSource, callbackURL, secret string) *EventSubManager {
	return &EventSubManager{
		api:         api,
		store:       store,
		callbackURL: callbackURL,
		secret:      secret,
	}
}

// Register creates the upstream subscription for a broadcaster. Idempotent:
// an existing subscription is the expected common case (reconciliation sweeps
// and broadcasters shared across guilds) and is treated as success.
func (m *EventSubManager) Register(ctx context.Context, broadcasterID string) error {
	err := m.api.CreateStreamOnlineSubscription(ctx, broadcasterID, m.callbackURL, m.secret)
	if errors.Is(err, ErrAlreadySubscribed) {
		metrics.EventSubRegistrationsTotal.WithLabelValues("exists").Inc()
		slog.Debug("EventSub subscription already exists", "broadcaster_id", broadcasterID)
		return nil
	}
	if err != nil {
		metrics.EventSubRegistrationsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.EventSubRegistrationsTotal.WithLabelValues("created").Inc()
	slog.Info("Registered EventSub subscription", "broadcaster_id", broadcasterID)
	return nil
}

// ReconcileAll re-registers every broadcaster referenced by the store. Twitch
// may invalidate webhook subscriptions tied to rotated credentials, so this
// runs after every token refresh. Per-channel failures are logged and never
// abort the sweep.
func (m *EventSubManager) ReconcileAll(ctx context.Context) {
	channels, err := m.store.DistinctExternalChannels(ctx, domain.PlatformTwitch)
	if err != nil {
		slog.Error("Reconciliation sweep aborted: cannot list subscribed channels", "error", err)
		return
	}

	for _, broadcasterID := range channels {
		if err := m.Register(ctx, broadcasterID); err != nil {
			slog.Error("Failed to re-register EventSub subscription",
				"broadcaster_id", broadcasterID, "error", err)
		}
	}

	slog.Info("EventSub reconciliation sweep finished", "channels", len(channels))
}

// Deregister removes every upstream subscription targeting the broadcaster.
// Called when the last local subscription for a broadcaster is removed, and
// when a live event arrives for a broadcaster nobody watches anymore.
func (m *EventSubManager) Deregister(ctx context.Context, broadcasterID string) error {
	ids, err := m.api.SubscriptionsForBroadcaster(ctx, broadcasterID)
	if err != nil {
		metrics.EventSubDeregistrationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to look up subscriptions for broadcaster %s: %w", broadcasterID, err)
	}

	var errs []error
	for _, id := range ids {
		if err := m.api.DeleteSubscription(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		metrics.EventSubDeregistrationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to deregister broadcaster %s: %w", broadcasterID, errors.Join(errs...))
	}

	metrics.EventSubDeregistrationsTotal.WithLabelValues("success").Inc()
	slog.Info("Deregistered EventSub subscriptions", "broadcaster_id", broadcasterID, "count", len(ids))
	return nil
}
