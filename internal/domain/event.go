package domain

import "time"

// LiveEvent is the ephemeral "broadcaster went live" notification produced by
// a verified webhook payload. It is never persisted.
type LiveEvent struct {
	Platform               Platform
	BroadcasterID          string
	BroadcasterLogin       string
	BroadcasterDisplayName string
	StartedAt              time.Time
}
