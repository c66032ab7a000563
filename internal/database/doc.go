// Package database provides PostgreSQL connectivity and the subscription
// repository.
//
// Uses pgx for connection pooling; the schema is created by idempotent inline
// migrations run at startup.
package database
