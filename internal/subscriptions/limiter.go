package subscriptions

import (
	"context"
	"fmt"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// CapacityError is the user-facing rejection for a guild at its subscription
// ceiling.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("you have reached the maximum of %d subscriptions for this server", e.Limit)
}

// DuplicateError is the user-facing rejection for a subscription that already
// exists.
type DuplicateError struct {
	ChannelName string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("this server is already subscribed to %s", e.ChannelName)
}

// Limiter enforces the per-guild capacity and duplicate invariants. Both
// checks run before any upstream registration is attempted, so a local
// rejection never leaks an orphaned upstream subscription.
type Limiter struct {
	store domain.SubscriptionStore
	max   int
}

func NewLimiter(store domain.SubscriptionStore, max int) *Limiter {
	return &Limiter{store: store, max: max}
}

// CheckCapacity fails with *CapacityError when the guild already holds the
// maximum number of subscriptions.
func (l *Limiter) CheckCapacity(ctx context.Context, guildID string) error {
	count, err := l.store.CountByGuild(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to count subscriptions: %w", err)
	}
	if count >= l.max {
		return &CapacityError{Limit: l.max}
	}
	return nil
}

// CheckDuplicate fails with *DuplicateError when the guild already watches
// the external channel on the platform.
func (l *Limiter) CheckDuplicate(ctx context.Context, guildID string, platform domain.Platform, externalChannelID, channelName string) error {
	subs, err := l.store.FindByGuild(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for _, sub := range subs {
		if sub.Platform == platform && sub.ExternalChannelID == externalChannelID {
			return &DuplicateError{ChannelName: channelName}
		}
	}
	return nil
}
