// Package api talks to the room service's HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/watchsync/internal/dns"
	"github.com/BioHazard786/watchsync/internal/protocol"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api returned status %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("api returned status %d", e.Code)
}

// RoomSummary is one entry of the active room listing.
type RoomSummary struct {
	ID           string `json:"id"`
	ActiveUsers  int    `json:"active_users"`
	CurrentVideo string `json:"current_video"`
	QueueSize    int    `json:"queue_size"`
}

type Client struct {
	baseURL string
	user    string
	client  *http.Client
	headers map[string]string
}

// NewClient returns a client for baseURL (scheme and host, no trailing
// path). user is sent as the identity query parameter when set.
func NewClient(baseURL, user string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.DialContext

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Resolve asks the service to turn originalURL into a playable descriptor.
func (c *Client) Resolve(ctx context.Context, originalURL string) (*protocol.VideoData, error) {
	query := url.Values{"url": {originalURL}}
	if c.user != "" {
		query.Set("user", c.user)
	}

	body, err := c.get(ctx, "/api/resolve", query)
	if err != nil {
		return nil, err
	}

	var v protocol.VideoData
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode resolved video: %w", err)
	}
	if v.OriginalURL == "" {
		v.OriginalURL = originalURL
	}
	return &v, nil
}

// Rooms lists the rooms that have members or queued videos.
func (c *Client) Rooms(ctx context.Context) ([]RoomSummary, error) {
	body, err := c.get(ctx, "/api/rooms", nil)
	if err != nil {
		return nil, err
	}

	var rooms []RoomSummary
	if err := json.Unmarshal(body, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode room list: %w", err)
	}
	return rooms, nil
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health", nil)
	return err
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("request to %s timed out: %w", endpoint, err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail extracts {"detail": "..."} bodies, falling back to the raw text.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
