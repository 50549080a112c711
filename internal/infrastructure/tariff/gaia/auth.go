package gaia

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Tokens are refreshed this long before the server-side expiry.
const tokenExpirySkew = 30 * time.Second

type tokenFetcher func(ctx context.Context, clientID, clientSecret string) (string, time.Duration, error)

type tokenCache struct {
	staticKey    string
	clientID     string
	clientSecret string
	fetch        tokenFetcher
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenCache(staticKey, clientID, clientSecret string, fetch tokenFetcher) *tokenCache {
	return &tokenCache{
		staticKey:    staticKey,
		clientID:     clientID,
		clientSecret: clientSecret,
		fetch:        fetch,
		now:          time.Now,
	}
}

// refreshable reports whether a rejected token may be replaced by a new one.
func (t *tokenCache) refreshable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.staticKey == "" && t.clientID != ""
}

func (t *tokenCache) get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.staticKey != "" {
		return t.staticKey, nil
	}
	if t.clientID == "" || t.clientSecret == "" {
		return "", errors.New("gaia credentials are not configured")
	}
	if t.token != "" && t.now().Before(t.expiresAt) {
		return t.token, nil
	}

	token, ttl, err := t.fetch(ctx, t.clientID, t.clientSecret)
	if err != nil {
		return "", err
	}
	if ttl > tokenExpirySkew {
		ttl -= tokenExpirySkew
	} else {
		ttl /= 2
	}
	t.token = token
	t.expiresAt = t.now().Add(ttl)
	return token, nil
}

func (t *tokenCache) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

func (t *tokenCache) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.staticKey = ""
	t.clientSecret = ""
}

func (c *Client) fetchToken(ctx context.Context, clientID, clientSecret string) (string, time.Duration, error) {
	var response struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	payload := map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/token", nil, payload, "", &response, "auth"); err != nil {
		return "", 0, err
	}
	if response.AccessToken == "" {
		return "", 0, errors.New("gaia auth: empty access token")
	}
	ttl := time.Duration(response.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return response.AccessToken, ttl, nil
}
