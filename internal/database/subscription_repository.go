package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// SubscriptionRepo is the pgx-backed system of record for subscriptions.
// Rows are never cached across requests; every lookup is fresh.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) UpsertGuild(ctx context.Context, guildID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO guilds (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		guildID)
	return err
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub domain.Subscription) error {
	var roleID *string
	if sub.DestinationRoleID != "" {
		roleID = &sub.DestinationRoleID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO subscriptions
			(id, guild_id, platform, external_channel_id, external_channel_name,
			 destination_channel_id, destination_role_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.GuildID, string(sub.Platform), sub.ExternalChannelID,
		sub.ExternalChannelName, sub.DestinationChannelID, roleID)
	return err
}

func (r *SubscriptionRepo) Delete(ctx context.Context, guildID string, platform domain.Platform, externalChannelID string) (domain.Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM subscriptions
		 WHERE guild_id = $1 AND platform = $2 AND external_channel_id = $3
		 RETURNING id, guild_id, platform, external_channel_id, external_channel_name,
			destination_channel_id, destination_role_id, created_at`,
		guildID, string(platform), externalChannelID)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, err
}

func (r *SubscriptionRepo) FindByGuild(ctx context.Context, guildID string) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, guild_id, platform, external_channel_id, external_channel_name,
			destination_channel_id, destination_role_id, created_at
		 FROM subscriptions
		 WHERE guild_id = $1
		 ORDER BY created_at`,
		guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *SubscriptionRepo) FindByExternalChannel(ctx context.Context, platform domain.Platform, externalChannelID string) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, guild_id, platform, external_channel_id, external_channel_name,
			destination_channel_id, destination_role_id, created_at
		 FROM subscriptions
		 WHERE platform = $1 AND external_channel_id = $2
		 ORDER BY created_at`,
		string(platform), externalChannelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *SubscriptionRepo) DistinctExternalChannels(ctx context.Context, platform domain.Platform) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT external_channel_id FROM subscriptions WHERE platform = $1`,
		string(platform))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SubscriptionRepo) CountByGuild(ctx context.Context, guildID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE guild_id = $1`,
		guildID).Scan(&count)
	return count, err
}

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var sub domain.Subscription
	var platform string
	var roleID *string
	err := row.Scan(&sub.ID, &sub.GuildID, &platform, &sub.ExternalChannelID,
		&sub.ExternalChannelName, &sub.DestinationChannelID, &roleID, &sub.CreatedAt)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Platform = domain.Platform(platform)
	if roleID != nil {
		sub.DestinationRoleID = *roleID
	}
	return sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
