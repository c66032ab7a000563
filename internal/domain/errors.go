package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrExternalChannelNotFound means the broadcaster channel does not exist
	// on the streaming platform.
	ErrExternalChannelNotFound = errors.New("external channel not found")

	// ErrChannelNotFound means the Discord destination channel could not be
	// resolved (deleted, or the bot lost access).
	ErrChannelNotFound = errors.New("destination channel not found")

	ErrPlatformUnsupported = errors.New("platform not supported")
)
