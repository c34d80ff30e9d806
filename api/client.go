package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yllada/vpn-bridge/tunnel"
)

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on addr, given as
// host:port or as a URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/") + "/" + APIVersion,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks that the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	return c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
}

// TunnelState returns the persisted tunnel state.
func (c *Client) TunnelState(ctx context.Context) (TunnelStateResponse, error) {
	var resp TunnelStateResponse
	err := c.do(ctx, http.MethodGet, "/tunnel-state", nil, &resp)
	return resp, err
}

// PublishTunnelState submits s to the engine's state stream.
func (c *Client) PublishTunnelState(ctx context.Context, s tunnel.State) error {
	var resp TunnelStateResponse
	return c.do(ctx, http.MethodPut, "/tunnel-state", s, &resp)
}

// Connectivity returns the bridge's view of the host's networks.
func (c *Client) Connectivity(ctx context.Context) (ConnectivityResponse, error) {
	var resp ConnectivityResponse
	err := c.do(ctx, http.MethodGet, "/connectivity", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr APIError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
