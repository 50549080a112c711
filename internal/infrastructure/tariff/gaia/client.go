package gaia

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL string
	// APIKey is sent as a static bearer token. When empty, ClientID and
	// ClientSecret are exchanged for an expiring token instead.
	APIKey       string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Executor     *resilience.Executor
}

// Client talks to the tariff classification API. It owns its token cache;
// call Close to drop credentials and idle connections.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	tokens     *tokenCache
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
	c.tokens = newTokenCache(opts.APIKey, opts.ClientID, opts.ClientSecret, c.fetchToken)
	return c
}

func (c *Client) Close() {
	c.tokens.clear()
	c.httpClient.CloseIdleConnections()
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, fn, resilience.ClassifyHTTPError)
	} else {
		err = fn(ctx)
	}
	return mapGaiaError(operation, err)
}
