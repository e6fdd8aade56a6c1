// Package identityprovider talks back to the external identity provider to
// keep its copy of the username in line with the committed handle and to
// record the local user ID on the provider's user.
package identityprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

var ErrNotConfigured = errors.New("identity provider client not configured")

type Client struct {
	users *user.Client
}

// NewClient builds a client for the backend API at baseURL (the SDK default
// when empty). An empty apiKey yields a client that only returns
// ErrNotConfigured.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if apiKey == "" {
		return &Client{}
	}

	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if baseURL != "" {
		cfg.URL = clerk.String(baseURL)
	}
	return &Client{users: user.NewClient(cfg)}
}

// UpdateUsername sets the provider-side username of externalID.
func (c *Client) UpdateUsername(ctx context.Context, externalID, handle string) error {
	if c.users == nil {
		return ErrNotConfigured
	}

	if _, err := c.users.Update(ctx, externalID, &user.UpdateParams{Username: clerk.String(handle)}); err != nil {
		return fmt.Errorf("update username for %s: %w", externalID, err)
	}
	return nil
}

// SetLocalUserID stores userID under "userId" in the public metadata of
// externalID. Other metadata keys are left as they are.
func (c *Client) SetLocalUserID(ctx context.Context, externalID, userID string) error {
	if c.users == nil {
		return ErrNotConfigured
	}

	raw, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return err
	}
	meta := json.RawMessage(raw)

	if _, err := c.users.UpdateMetadata(ctx, externalID, &user.UpdateMetadataParams{PublicMetadata: &meta}); err != nil {
		return fmt.Errorf("update metadata for %s: %w", externalID, err)
	}
	return nil
}
