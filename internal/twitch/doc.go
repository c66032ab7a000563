// Package twitch integrates with the Twitch API.
//
// AppTokenSource owns the cached app access token. Client wraps the Helix API
// for user lookup and EventSub subscription management. EventSubManager
// registers, reconciles, and removes stream.online subscriptions. The webhook
// handler verifies inbound EventSub callbacks and forwards live events.
package twitch
