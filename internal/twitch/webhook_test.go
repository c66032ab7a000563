package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

const testWebhookSecret = "test-webhook-secret-1234567890"

// recordingDispatcher captures dispatched events. Dispatch runs on its own
// goroutine, so receipt is signalled over a channel.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.LiveEvent
	got    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{got: make(chan struct{}, 8)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event domain.LiveEvent) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	d.got <- struct{}{}
}

func (d *recordingDispatcher) waitForEvent(t *testing.T) domain.LiveEvent {
	t.Helper()
	select {
	case <-d.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[len(d.events)-1]
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func signRequest(secret, messageID, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID + timestamp + body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func makeStreamOnlineBody(broadcasterID, login, displayName string) string {
	payload := map[string]any{
		"subscription": map[string]any{
			"id":      "sub-123",
			"type":    "stream.online",
			"version": "1",
			"status":  "enabled",
			"condition": map[string]string{
				"broadcaster_user_id": broadcasterID,
			},
		},
		"event": map[string]any{
			"broadcaster_user_id":    broadcasterID,
			"broadcaster_user_login": login,
			"broadcaster_user_name":  displayName,
			"type":                   "live",
			"started_at":             time.Now().UTC().Format(time.RFC3339),
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func makeSignedRequest(secret, body string, retry int) *http.Request {
	messageID := "msg-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	req := httptest.NewRequest(http.MethodPost, "/callback/twitch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerMessageID, messageID)
	req.Header.Set(headerMessageTimestamp, timestamp)
	req.Header.Set(headerMessageSignature, signRequest(secret, messageID, timestamp, body))
	req.Header.Set(headerMessageRetry, strconv.Itoa(retry))
	return req
}

func serveCallback(t *testing.T, h *WebhookHandler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.HandleCallback(c))
	return rec
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := signRequest(testWebhookSecret, "msg-1", "2026-01-01T00:00:00Z", string(body))

	assert.True(t, VerifySignature(testWebhookSecret, "msg-1", "2026-01-01T00:00:00Z", body, sig))
	assert.False(t, VerifySignature(testWebhookSecret, "msg-2", "2026-01-01T00:00:00Z", body, sig),
		"message id is part of the signed payload")
	assert.False(t, VerifySignature(testWebhookSecret, "msg-1", "2026-01-01T00:00:01Z", body, sig),
		"timestamp is part of the signed payload")
	assert.False(t, VerifySignature("other-secret-0123456789", "msg-1", "2026-01-01T00:00:00Z", body, sig))
}

func TestVerifySignature_FlippedBodyByte(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := signRequest(testWebhookSecret, "msg-1", "2026-01-01T00:00:00Z", string(body))

	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01

	assert.False(t, VerifySignature(testWebhookSecret, "msg-1", "2026-01-01T00:00:00Z", tampered, sig))
}

func TestHandleCallback_StreamOnlineDispatched(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := makeStreamOnlineBody("12345", "somestreamer", "SomeStreamer")
	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, body, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	event := d.waitForEvent(t)
	assert.Equal(t, domain.PlatformTwitch, event.Platform)
	assert.Equal(t, "12345", event.BroadcasterID)
	assert.Equal(t, "somestreamer", event.BroadcasterLogin)
	assert.Equal(t, "SomeStreamer", event.BroadcasterDisplayName)
}

func TestHandleCallback_InvalidSignature(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := makeStreamOnlineBody("12345", "somestreamer", "SomeStreamer")
	rec := serveCallback(t, h, makeSignedRequest("wrong-secret-0123456789", body, 0))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, d.count())
}

func TestHandleCallback_ChallengeEchoed(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := `{"challenge":"pogchamp-challenge-value","subscription":{"type":"stream.online"}}`
	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, body, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pogchamp-challenge-value", rec.Body.String())
	assert.Equal(t, 0, d.count())
}

func TestHandleCallback_ChallengeIsEscaped(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := `{"challenge":"<script>alert(1)</script>","subscription":{"type":"stream.online"}}`
	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, body, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestHandleCallback_RetriedDeliveryAcknowledgedWithoutDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := makeStreamOnlineBody("12345", "somestreamer", "SomeStreamer")
	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, body, 1))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, d.count())
}

func TestHandleCallback_UnknownEventTypeAcknowledged(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	body := `{"subscription":{"type":"stream.offline"},"event":{"broadcaster_user_id":"12345"}}`
	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, body, 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, d.count())
}

func TestHandleCallback_MalformedSignedPayloadAcknowledged(t *testing.T) {
	d := newRecordingDispatcher()
	h := NewWebhookHandler(testWebhookSecret, d)

	rec := serveCallback(t, h, makeSignedRequest(testWebhookSecret, "this is not json", 0))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, d.count())
}
