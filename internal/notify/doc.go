// Package notify fans a verified live event out to every subscribed Discord
// channel, isolating per-recipient failures.
package notify
