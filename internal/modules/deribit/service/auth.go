package service

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// tokenHeadroom keeps us from riding a token into its expiry mid-strategy.
const tokenHeadroom = 60 * time.Second

// Token returns a valid bearer token for the account, refreshing through
// public/auth when the cached one is absent or about to expire.
func (c *Client) Token(ctx context.Context, account string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[account]
	c.mu.Unlock()

	if ok && time.Now().Before(cached.expiresAt.Add(-tokenHeadroom)) {
		return cached.token, nil
	}

	acc, err := c.cfg.AccountByName(account)
	if err != nil {
		return "", fmt.Errorf("Client.Token: %w", err)
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", acc.ClientID)
	q.Set("client_secret", acc.ClientSecret)

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := c.getPublic(ctx, "public/auth", q, &result); err != nil {
		return "", fmt.Errorf("Client.Token auth %s: %w", account, err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("Client.Token: empty access_token for %s", account)
	}

	c.mu.Lock()
	c.tokens[account] = cachedToken{
		token:     result.AccessToken,
		expiresAt: time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()

	return result.AccessToken, nil
}
