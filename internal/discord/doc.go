// Package discord adapts the bot to Discord: the gateway session, the static
// slash-command registry, and the messenger used for notification delivery.
package discord
