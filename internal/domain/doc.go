// Package domain holds the core types and contracts shared across the bot:
// subscriptions, live events, and the persistence interface they depend on.
package domain
