// Package api is the client core's REST binding to the NetLink service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/timeouts"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
)

const maxResponseBytes = 4 << 20

// Client calls the NetLink HTTP API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	locale  string

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLocale sets Accept-Language on every request.
func WithLocale(locale string) Option {
	return func(c *Client) {
		c.locale = strings.TrimSpace(locale)
	}
}

// New builds a client for baseURL, e.g. http://localhost:8088.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: timeouts.APIRequest},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RealtimeURL is the websocket address of the /ws endpoint.
func (c *Client) RealtimeURL() string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		var data []byte
		switch v := body.(type) {
		case json.RawMessage:
			data = v
		default:
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode %s %s: %w", method, path, err)
			}
			data = encoded
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeNetLinkUnavailable, "netlink unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// StatusError is a non-2xx response without a recognizable error body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("netlink responded %d: %s", e.StatusCode, e.Body)
}

// decodeError turns an error body back into a coded domain error carrying
// the server's localized message.
func decodeError(status int, data []byte) error {
	var body contract.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return &StatusError{StatusCode: status, Body: strings.TrimSpace(string(data))}
	}
	return apperrors.Wrap(apperrors.Code(body.Error.Code), body.Error.Message, &StatusError{StatusCode: status, Body: body.Error.Message})
}

// HTTPStatusOf returns the response status carried by err, or 0.
func HTTPStatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func escape(segment string) string {
	return url.PathEscape(strings.TrimSpace(segment))
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}
