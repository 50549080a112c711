package gaia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/resilience"
)

// authorizedJSON sends an authenticated request. A 401 on a refreshable
// token drops it and retries once with a fresh one.
func (c *Client) authorizedJSON(ctx context.Context, method, path string, query url.Values, payload any, out any, operation string) error {
	token, err := c.tokens.get(ctx)
	if err != nil {
		return fmt.Errorf("gaia %s auth: %w", operation, err)
	}
	err = c.sendJSON(ctx, method, path, query, payload, token, out, operation)

	if !hasStatus(err, http.StatusUnauthorized) || !c.tokens.refreshable() {
		return err
	}

	c.tokens.invalidate()
	token, err = c.tokens.get(ctx)
	if err != nil {
		return fmt.Errorf("gaia %s re-auth: %w", operation, err)
	}
	return c.sendJSON(ctx, method, path, query, payload, token, out, operation)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, query url.Values, payload any, token string, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gaia %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("gaia", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
