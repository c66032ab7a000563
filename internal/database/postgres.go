package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS guilds (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		guild_id TEXT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
		platform TEXT NOT NULL,
		external_channel_id TEXT NOT NULL,
		external_channel_name TEXT NOT NULL,
		destination_channel_id TEXT NOT NULL,
		destination_role_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (guild_id, platform, external_channel_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_external
		ON subscriptions(platform, external_channel_id)`,
}

// RunMigrations applies the schema. Every statement is idempotent, so running
// on every startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
