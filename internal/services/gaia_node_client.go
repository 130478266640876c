package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"gaiachat/internal/logger"
	"gaiachat/internal/version"
	"gaiachat/pkg/gaiatypes"
)

const gaiaServiceName = "gaia"

// GaiaNodeConfig holds configuration for the Gaia node client.
type GaiaNodeConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// GaiaNodeClient talks to an OpenAI-compatible Gaia node: the model roster and chat
// completions through openai-go, the published node configuration over plain HTTP.
// The OpenAI client is created lazily on first use.
type GaiaNodeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *log.Logger

	mu     sync.Mutex
	client *openai.Client
}

var _ gaiatypes.NodeBackend = (*GaiaNodeClient)(nil)

// NewGaiaNodeClient creates a client. An empty BaseURL is accepted here and
// reported as a configuration error when the node is first contacted.
func NewGaiaNodeClient(cfg GaiaNodeConfig) *GaiaNodeClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	return &GaiaNodeClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		log:        logger.NewStyledLogger("Gaia"),
	}
}

// BaseURL returns the configured node URL.
func (c *GaiaNodeClient) BaseURL() string {
	return c.baseURL
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *GaiaNodeClient) initializeClientIfNeeded() (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.baseURL == "" {
		return nil, &gaiatypes.ConfigurationError{Variable: "GAIA_NODE_URL"}
	}

	client := openai.NewClient(
		option.WithBaseURL(c.baseURL+"/v1/"),
		option.WithAPIKey(c.apiKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	)
	c.client = &client
	c.log.Debug("OpenAI client initialized", "baseURL", c.baseURL+"/v1")
	return c.client, nil
}

// ListModels returns the node's model roster.
func (c *GaiaNodeClient) ListModels(ctx context.Context) ([]gaiatypes.Model, error) {
	client, err := c.initializeClientIfNeeded()
	if err != nil {
		return nil, err
	}

	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, upstreamFromOpenAI("list models", err)
	}

	models := make([]gaiatypes.Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, gaiatypes.Model{
			ID:      m.ID,
			Object:  string(m.Object),
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	c.log.Debug("Models loaded", "count", len(models))
	return models, nil
}

// FetchNodeConfig downloads <node>/config_pub.json.
func (c *GaiaNodeClient) FetchNodeConfig(ctx context.Context) (gaiatypes.NodeConfig, error) {
	if c.baseURL == "" {
		return nil, &gaiatypes.ConfigurationError{Variable: "GAIA_NODE_URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config_pub.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &gaiatypes.UpstreamError{Service: gaiaServiceName, Op: "fetch node config", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &gaiatypes.UpstreamError{Service: gaiaServiceName, Op: "fetch node config", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &gaiatypes.UpstreamError{
			Service: gaiaServiceName,
			Op:      "fetch node config",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var cfg gaiatypes.NodeConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, &gaiatypes.UpstreamError{Service: gaiaServiceName, Op: "fetch node config", Status: resp.StatusCode, Err: fmt.Errorf("malformed config: %w", err)}
	}
	if cfg == nil {
		cfg = gaiatypes.NodeConfig{}
	}
	return cfg, nil
}

// Complete sends one chat-completion request. No retries are attempted.
func (c *GaiaNodeClient) Complete(ctx context.Context, req gaiatypes.CompletionRequest) (*gaiatypes.CompletionResult, error) {
	client, err := c.initializeClientIfNeeded()
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, turn := range req.Messages {
		switch turn.Role {
		case gaiatypes.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		case gaiatypes.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	c.log.Debug("Sending completion", "model", req.Model, "message_count", len(messages))
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, upstreamFromOpenAI("chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return nil, &gaiatypes.UpstreamError{Service: gaiaServiceName, Op: "chat completion", Err: errors.New("no response choices returned")}
	}

	return &gaiatypes.CompletionResult{
		Content:     completion.Choices[0].Message.Content,
		TotalTokens: completion.Usage.TotalTokens,
		Model:       completion.Model,
	}, nil
}

// upstreamFromOpenAI lifts the status and code of an API error into an UpstreamError.
func upstreamFromOpenAI(op string, err error) error {
	upstream := &gaiatypes.UpstreamError{Service: gaiaServiceName, Op: op, Err: err}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		upstream.Status = apiErr.StatusCode
		upstream.Code = apiErr.Code
		if apiErr.Message != "" {
			upstream.Err = errors.New(apiErr.Message)
		} else {
			upstream.Err = fmt.Errorf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		}
	}
	return upstream
}
