package subscriptions

import (
	"context"
	"sync"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// memStore is an in-memory domain.SubscriptionStore for tests.
type memStore struct {
	mu     sync.Mutex
	guilds map[string]bool
	subs   []domain.Subscription

	countErr  error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{guilds: make(map[string]bool)}
}

func (s *memStore) UpsertGuild(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guildID] = true
	return nil
}

func (s *memStore) Create(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *memStore) Delete(_ context.Context, guildID string, platform domain.Platform, externalChannelID string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.GuildID == guildID && sub.Platform == platform && sub.ExternalChannelID == externalChannelID {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrSubscriptionNotFound
}

func (s *memStore) FindByGuild(_ context.Context, guildID string) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.GuildID == guildID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *memStore) FindByExternalChannel(_ context.Context, platform domain.Platform, externalChannelID string) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.Platform == platform && sub.ExternalChannelID == externalChannelID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *memStore) DistinctExternalChannels(_ context.Context, platform domain.Platform) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, sub := range s.subs {
		if sub.Platform == platform && !seen[sub.ExternalChannelID] {
			seen[sub.ExternalChannelID] = true
			out = append(out, sub.ExternalChannelID)
		}
	}
	return out, nil
}

func (s *memStore) CountByGuild(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, sub := range s.subs {
		if sub.GuildID == guildID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
