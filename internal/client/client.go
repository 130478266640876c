// Package client is a typed HTTP client for the gaiachat API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gaiachat/internal/version"
	"gaiachat/pkg/gaiatypes"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Body       gaiatypes.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Body.Details != "" {
		return fmt.Sprintf("%s: %s", msg, e.Body.Details)
	}
	return msg
}

// Client calls a gaiachat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*gaiatypes.Health, error) {
	return call[gaiatypes.Health](ctx, c, http.MethodGet, "/health", nil)
}

// Config fetches the public client configuration.
func (c *Client) Config(ctx context.Context) (*gaiatypes.ClientConfig, error) {
	return call[gaiatypes.ClientConfig](ctx, c, http.MethodGet, "/api/config", nil)
}

// Models lists the node's models.
func (c *Client) Models(ctx context.Context) ([]gaiatypes.Model, error) {
	out, err := call[[]gaiatypes.Model](ctx, c, http.MethodGet, "/api/chat/models", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// SystemPrompt reports the prompt sources.
func (c *Client) SystemPrompt(ctx context.Context) (*gaiatypes.SystemPromptInfo, error) {
	return call[gaiatypes.SystemPromptInfo](ctx, c, http.MethodGet, "/api/chat/system-prompt", nil)
}

// SetSystemPrompt sets the global override.
func (c *Client) SetSystemPrompt(ctx context.Context, prompt string) (*gaiatypes.SystemPromptUpdate, error) {
	body := map[string]string{"systemPrompt": prompt}
	return call[gaiatypes.SystemPromptUpdate](ctx, c, http.MethodPost, "/api/chat/system-prompt", body)
}

// ResetSystemPrompt clears the global override.
func (c *Client) ResetSystemPrompt(ctx context.Context) (*gaiatypes.SystemPromptUpdate, error) {
	return call[gaiatypes.SystemPromptUpdate](ctx, c, http.MethodDelete, "/api/chat/system-prompt", nil)
}

// SendMessage sends one chat message.
func (c *Client) SendMessage(ctx context.Context, req gaiatypes.SendMessageRequest) (*gaiatypes.SendMessageResult, error) {
	return call[gaiatypes.SendMessageResult](ctx, c, http.MethodPost, "/api/chat/message", req)
}

// Session fetches a session.
func (c *Client) Session(ctx context.Context, id string) (*gaiatypes.Session, error) {
	return call[gaiatypes.Session](ctx, c, http.MethodGet, "/api/chat/session/"+url.PathEscape(id), nil)
}

// NodeConfig fetches the node's published configuration.
func (c *Client) NodeConfig(ctx context.Context) (gaiatypes.NodeConfig, error) {
	out, err := call[gaiatypes.NodeConfig](ctx, c, http.MethodGet, "/api/chat/node-config", nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// StoreChat uploads a session transcript.
func (c *Client) StoreChat(ctx context.Context, req gaiatypes.ExportRequest) (*gaiatypes.StorageReceipt, error) {
	return call[gaiatypes.StorageReceipt](ctx, c, http.MethodPost, "/api/storage/store-chat", req)
}

// MyFiles lists the wallet's stored transcripts.
func (c *Client) MyFiles(ctx context.Context, wallet string, page, limit int) (*gaiatypes.FilesPage, error) {
	q := url.Values{}
	q.Set("walletAddress", wallet)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	return call[gaiatypes.FilesPage](ctx, c, http.MethodGet, "/api/storage/my-files?"+q.Encode(), nil)
}

// Download fetches a stored transcript's bytes.
func (c *Client) Download(ctx context.Context, cid string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/storage/download/"+url.PathEscape(cid), nil)
}

// call sends in as JSON (when non-nil) and decodes the reply into a T.
func call[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.doJSON(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, &apiErr.Body) != nil {
			apiErr.Body.Error = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return raw, nil
}
