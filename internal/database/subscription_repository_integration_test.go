package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

func createTestSubscription(t *testing.T, repo *SubscriptionRepo, guildID, externalID, roleID string) domain.Subscription {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, repo.UpsertGuild(ctx, guildID))

	sub := domain.Subscription{
		ID:                   uuid.New(),
		GuildID:              guildID,
		Platform:             domain.PlatformTwitch,
		ExternalChannelID:    externalID,
		ExternalChannelName:  "Streamer" + externalID,
		DestinationChannelID: "chan-" + guildID,
		DestinationRoleID:    roleID,
	}
	require.NoError(t, repo.Create(ctx, sub))
	return sub
}

func TestUpsertGuild_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	require.NoError(t, repo.UpsertGuild(ctx, "guild-1"))
	require.NoError(t, repo.UpsertGuild(ctx, "guild-1"))
}

func TestCreateAndFindByGuild(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	created := createTestSubscription(t, repo, "guild-1", "12345", "role-9")
	createTestSubscription(t, repo, "guild-2", "12345", "")

	subs, err := repo.FindByGuild(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	got := subs[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.PlatformTwitch, got.Platform)
	assert.Equal(t, "12345", got.ExternalChannelID)
	assert.Equal(t, "Streamer12345", got.ExternalChannelName)
	assert.Equal(t, "chan-guild-1", got.DestinationChannelID)
	assert.Equal(t, "role-9", got.DestinationRoleID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreate_EmptyRoleStoredAsNull(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	createTestSubscription(t, repo, "guild-1", "12345", "")

	subs, err := repo.FindByGuild(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].DestinationRoleID)

	var nullCount int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE destination_role_id IS NULL").Scan(&nullCount)
	require.NoError(t, err)
	assert.Equal(t, 1, nullCount)
}

func TestCreate_DuplicateTupleRejected(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	createTestSubscription(t, repo, "guild-1", "12345", "")

	dup := domain.Subscription{
		ID:                   uuid.New(),
		GuildID:              "guild-1",
		Platform:             domain.PlatformTwitch,
		ExternalChannelID:    "12345",
		ExternalChannelName:  "Streamer12345",
		DestinationChannelID: "other-chan",
	}
	assert.Error(t, repo.Create(ctx, dup), "unique (guild, platform, channel) constraint")
}

func TestDelete_ReturnsRemovedRow(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	created := createTestSubscription(t, repo, "guild-1", "12345", "role-9")

	sub, err := repo.Delete(ctx, "guild-1", domain.PlatformTwitch, "12345")
	require.NoError(t, err)
	assert.Equal(t, created.ID, sub.ID)
	assert.Equal(t, "Streamer12345", sub.ExternalChannelName)
	assert.Equal(t, "role-9", sub.DestinationRoleID)

	count, err := repo.CountByGuild(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDelete_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	_, err := repo.Delete(ctx, "guild-1", domain.PlatformTwitch, "12345")
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestFindByExternalChannel_CrossGuild(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	createTestSubscription(t, repo, "guild-1", "12345", "")
	createTestSubscription(t, repo, "guild-2", "12345", "")
	createTestSubscription(t, repo, "guild-3", "99999", "")

	subs, err := repo.FindByExternalChannel(ctx, domain.PlatformTwitch, "12345")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	guilds := []string{subs[0].GuildID, subs[1].GuildID}
	assert.ElementsMatch(t, []string{"guild-1", "guild-2"}, guilds)
}

func TestDistinctExternalChannels(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	createTestSubscription(t, repo, "guild-1", "12345", "")
	createTestSubscription(t, repo, "guild-2", "12345", "")
	createTestSubscription(t, repo, "guild-3", "99999", "")

	ids, err := repo.DistinctExternalChannels(ctx, domain.PlatformTwitch)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"12345", "99999"}, ids)

	ids, err = repo.DistinctExternalChannels(ctx, domain.PlatformYouTube)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCountByGuild(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSubscriptionRepo(pool)
	ctx := context.Background()

	count, err := repo.CountByGuild(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	createTestSubscription(t, repo, "guild-1", "111", "")
	createTestSubscription(t, repo, "guild-1", "222", "")

	count, err = repo.CountByGuild(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
