// Package http wraps the standard client with the timeout discipline
// the Bot API transport needs: every exchange is capped end to end,
// and callers attach per-request deadlines through the request context.
package http

import (
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
}

// NewClient caps the whole exchange, body included. Long-poll callers
// size the timeout above their poll window or the read gets cut off
// mid-wait.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
