// Package subscriptions implements the subscribe/unsubscribe flows: per-guild
// capacity and duplicate guards, orchestration against the Twitch API and the
// store, and the per-guild command throttle.
package subscriptions
