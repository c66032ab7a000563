package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ArchonCollection/StreamPing/internal/metrics"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"

	// tokenExpiryBuffer keeps us from handing out a token that is about to
	// expire mid-request.
	tokenExpiryBuffer = 60 * time.Second
)

// AuthError indicates app access token acquisition failed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("twitch token acquisition failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// tokenState is the persisted form of the cached token, written so a process
// restart does not force an immediate reacquire.
type tokenState struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// AppTokenSource fetches and caches the Twitch app access (client credentials)
// token. Only one refresh is ever in flight; concurrent callers observe either
// the cached token or the outcome of that single refresh.
type AppTokenSource struct {
	clientID     string
	clientSecret string
	tokenURL     string
	statePath    string
	httpClient   *http.Client
	clock        clockwork.Clock

	onRefresh func()

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewAppTokenSource creates a token source. statePath is the file the token is
// persisted to; if it holds an unexpired token it is loaded so startup does
// not cost a token request.
func NewAppTokenSource(clientID, clientSecret, statePath string, clock clockwork.Clock) *AppTokenSource {
	s := &AppTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		statePath:    statePath,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		clock:        clock,
	}
	s.loadState()
	return s
}

// SetOnRefresh registers a hook invoked in its own goroutine after every
// successful token acquisition. Call before the first Token call.
func (s *AppTokenSource) SetOnRefresh(fn func()) {
	s.onRefresh = fn
}

// Token returns a valid app access token, refreshing if the cached one is
// missing or about to expire.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.valid() {
		tok := s.token
		s.mu.RUnlock()
		return tok, nil
	}
	s.mu.RUnlock()
	return s.refresh(ctx)
}

// valid reports whether the cached token is usable. Callers must hold mu.
func (s *AppTokenSource) valid() bool {
	return s.token != "" && s.clock.Now().Add(tokenExpiryBuffer).Before(s.expiresAt)
}

func (s *AppTokenSource) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if s.valid() {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: err}
	}

	s.token = result.AccessToken
	s.expiresAt = s.clock.Now().Add(time.Duration(result.ExpiresIn) * time.Second)

	s.persistState()
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	slog.Info("Twitch app access token refreshed", "expires_at", s.expiresAt)

	// Twitch may have invalidated webhook subscriptions tied to the old
	// credentials, so kick off a reconciliation sweep.
	if s.onRefresh != nil {
		go s.onRefresh()
	}

	return s.token, nil
}

// loadState restores a persisted token from disk. Missing or stale state is
// not an error; it just means the first Token call hits the network.
func (s *AppTokenSource) loadState() {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return
	}

	var state tokenState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Ignoring malformed token state file", "path", s.statePath, "error", err)
		return
	}

	if state.AccessToken == "" || !s.clock.Now().Add(tokenExpiryBuffer).Before(state.Expiry) {
		return
	}

	s.token = state.AccessToken
	s.expiresAt = state.Expiry
	slog.Info("Loaded persisted Twitch token", "expires_at", s.expiresAt)
}

// persistState writes the cached token to disk. Callers must hold mu.
func (s *AppTokenSource) persistState() {
	data, err := json.Marshal(tokenState{AccessToken: s.token, Expiry: s.expiresAt})
	if err != nil {
		slog.Warn("Failed to encode token state", "error", err)
		return
	}
	if err := os.WriteFile(s.statePath, data, 0o600); err != nil {
		slog.Warn("Failed to persist token state", "path", s.statePath, "error", err)
	}
}
