package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ArchonCollection/StreamPing/internal/domain"
	"github.com/ArchonCollection/StreamPing/internal/metrics"
)

// EventSub message headers sent by Twitch.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageRetry     = "Twitch-Eventsub-Message-Retry"

	signaturePrefix = "sha256="

	eventTypeStreamOnline = "stream.online"
)

// VerifySignature reports whether signatureHeader matches the HMAC-SHA256 of
// messageID + timestamp + body under secret, in "sha256=<hex>" form. Twitch
// signs the concatenation of all three; verifying the body alone accepts
// replayed payloads under fresh headers.
func VerifySignature(secret, messageID, timestamp string, body []byte, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// dispatcher receives verified live events.
type dispatcher interface {
	Dispatch(ctx context.Context, event domain.LiveEvent)
}

// WebhookHandler verifies inbound EventSub callbacks and routes them:
// challenge handshakes are echoed, redeliveries are acknowledged without
// processing, and stream.online notifications go to the dispatcher.
type WebhookHandler struct {
	secret     string
	dispatcher dispatcher
}

func NewWebhookHandler(secret string, d dispatcher) *WebhookHandler {
	return &WebhookHandler{secret: secret, dispatcher: d}
}

type callbackPayload struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event struct {
		BroadcasterUserID    string    `json:"broadcaster_user_id"`
		BroadcasterUserLogin string    `json:"broadcaster_user_login"`
		BroadcasterUserName  string    `json:"broadcaster_user_name"`
		StartedAt            time.Time `json:"started_at"`
	} `json:"event"`
}

// HandleCallback is the echo handler for POST /callback/twitch. The response
// contract with Twitch is 200 or 403 only; anything else pauses delivery.
func (h *WebhookHandler) HandleCallback(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("rejected").Inc()
		return c.String(http.StatusForbidden, "Forbidden")
	}

	ok := VerifySignature(
		h.secret,
		req.Header.Get(headerMessageID),
		req.Header.Get(headerMessageTimestamp),
		body,
		req.Header.Get(headerMessageSignature),
	)
	if !ok {
		metrics.WebhookRequestsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Rejected webhook with invalid signature",
			"message_id", req.Header.Get(headerMessageID))
		return c.String(http.StatusForbidden, "Forbidden")
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Signed but unparseable; acknowledge so Twitch does not pause delivery.
		slog.Warn("Ignoring malformed webhook payload", "error", err)
		metrics.WebhookRequestsTotal.WithLabelValues("verified").Inc()
		return c.String(http.StatusOK, "OK")
	}

	if payload.Challenge != "" {
		metrics.WebhookRequestsTotal.WithLabelValues("challenge").Inc()
		slog.Info("Answering EventSub challenge", "subscription_type", payload.Subscription.Type)
		return c.String(http.StatusOK, html.EscapeString(payload.Challenge))
	}

	// EventSub delivery is at-least-once; a non-zero retry count means we
	// already processed this event.
	if retry, _ := strconv.Atoi(req.Header.Get(headerMessageRetry)); retry > 0 {
		metrics.WebhookRequestsTotal.WithLabelValues("duplicate").Inc()
		return c.String(http.StatusOK, "OK")
	}

	if payload.Subscription.Type == eventTypeStreamOnline {
		event := domain.LiveEvent{
			Platform:               domain.PlatformTwitch,
			BroadcasterID:          payload.Event.BroadcasterUserID,
			BroadcasterLogin:       payload.Event.BroadcasterUserLogin,
			BroadcasterDisplayName: payload.Event.BroadcasterUserName,
			StartedAt:              payload.Event.StartedAt,
		}
		// Fan-out happens off the request path; Twitch expects a fast ack.
		go h.dispatcher.Dispatch(context.WithoutCancel(req.Context()), event)
	}

	metrics.WebhookRequestsTotal.WithLabelValues("verified").Inc()
	return c.String(http.StatusOK, "OK")
}
