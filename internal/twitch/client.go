package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"github.com/ArchonCollection/StreamPing/internal/domain"
)

// ErrAlreadySubscribed means the upstream subscription for a broadcaster
// already exists. Expected during reconciliation sweeps and when several
// guilds watch the same broadcaster.
var ErrAlreadySubscribed = errors.New("eventsub subscription already exists")

// RegisterError is an upstream registration rejection for a reason other than
// "already exists". The message is surfaced to the requesting user.
type RegisterError struct {
	StatusCode int
	Message    string
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("eventsub registration rejected (status %d): %s", e.StatusCode, e.Message)
}

// tokenSource provides a valid app access token.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client wraps the Helix API. The underlying helix client holds the access
// token as mutable state, so calls are serialized with a mutex.
type Client struct {
	mu     sync.Mutex
	helix  *helix.Client
	tokens tokenSource
}

// ClientOption customizes the Client, e.g. pointing it at a mock API in tests.
type ClientOption func(*helix.Options)

// WithAPIBaseURL overrides the Helix API base URL.
func WithAPIBaseURL(baseURL string) ClientOption {
	return func(o *helix.Options) {
		o.APIBaseURL = baseURL
	}
}

func NewClient(clientID string, tokens tokenSource, opts ...ClientOption) (*Client, error) {
	options := &helix.Options{ClientID: clientID}
	for _, opt := range opts {
		opt(options)
	}

	hc, err := helix.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	return &Client{helix: hc, tokens: tokens}, nil
}

// UserByLogin fetches a broadcaster channel by its login name.
// Returns domain.ErrExternalChannelNotFound when no such channel exists.
func (c *Client) UserByLogin(ctx context.Context, login string) (*domain.ChannelInfo, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.helix.SetAppAccessToken(tok)
	resp, err := c.helix.GetUsers(&helix.UsersParams{Logins: []string{login}})
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to fetch twitch user: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch user lookup returned %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Users) == 0 {
		return nil, domain.ErrExternalChannelNotFound
	}

	u := resp.Data.Users[0]
	return &domain.ChannelInfo{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		Description:     u.Description,
		ProfileImageURL: u.ProfileImageURL,
	}, nil
}

// CreateStreamOnlineSubscription registers a stream.online webhook
// subscription for the broadcaster. Returns ErrAlreadySubscribed when Twitch
// reports a conflict, *RegisterError for any other rejection.
func (c *Client) CreateStreamOnlineSubscription(ctx context.Context, broadcasterID, callbackURL, secret string) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.helix.SetAppAccessToken(tok)
	resp, err := c.helix.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:    helix.EventSubTypeStreamOnline,
		Version: "1",
		Condition: helix.EventSubCondition{
			BroadcasterUserID: broadcasterID,
		},
		Transport: helix.EventSubTransport{
			Method:   "webhook",
			Callback: callbackURL,
			Secret:   secret,
		},
	})
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to create eventsub subscription: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return ErrAlreadySubscribed
	}
	if resp.StatusCode >= 300 {
		return &RegisterError{StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}

	return nil
}

// SubscriptionsForBroadcaster returns the ids of every stream.online
// subscription whose condition targets the given broadcaster.
func (c *Client) SubscriptionsForBroadcaster(ctx context.Context, broadcasterID string) ([]string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	cursor := ""
	for {
		c.mu.Lock()
		c.helix.SetAppAccessToken(tok)
		resp, err := c.helix.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{
			Type:  helix.EventSubTypeStreamOnline,
			After: cursor,
		})
		c.mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("failed to list eventsub subscriptions: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("eventsub list returned %d: %s", resp.StatusCode, resp.ErrorMessage)
		}

		for _, sub := range resp.Data.EventSubSubscriptions {
			if sub.Condition.BroadcasterUserID == broadcasterID {
				ids = append(ids, sub.ID)
			}
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return ids, nil
		}
	}
}

// DeleteSubscription removes an upstream subscription by id. A 404 means the
// subscription is already gone and is treated as success.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.helix.SetAppAccessToken(tok)
	resp, err := c.helix.RemoveEventSubSubscription(subscriptionID)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to delete eventsub subscription: %w", err)
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("eventsub delete returned %d: %s", resp.StatusCode, resp.ErrorMessage)
	}

	return nil
}
