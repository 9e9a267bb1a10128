// Package client provides HTTP client functionality to communicate with a
// running thermoagent daemon.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ishmatuaulia/thermoagent/internal/server"
	"github.com/ishmatuaulia/thermoagent/internal/update"
)

// Client talks to the agent's local HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
	Insecure bool // skip TLS verification
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// New creates a new thermoagent API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := &http.Transport{}
	if config.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Status fetches the agent status snapshot.
func (c *Client) Status(ctx context.Context) (server.Status, error) {
	var st server.Status
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/status", nil, &st); err != nil {
		return server.Status{}, err
	}
	return st, nil
}

// TriggerUpdate submits an update trigger and returns the session key.
func (c *Client) TriggerUpdate(ctx context.Context, trig update.Trigger) (string, error) {
	if err := trig.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(trig)
	if err != nil {
		return "", fmt.Errorf("marshal trigger: %w", err)
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Session string `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/update", body, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("update triggered", "session", resp.Session)
	return resp.Session, nil
}

// Abort cancels the in-flight update, if any.
func (c *Client) Abort(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/abort", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon error: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
