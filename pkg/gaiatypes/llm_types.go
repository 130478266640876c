// Package gaiatypes defines inference-related types for gaiachat.
// This file contains the types exchanged with an OpenAI-compatible Gaia node.
package gaiatypes

import "context"

// DefaultSystemPrompt is used when neither an override, the request nor the node supplies one.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// DefaultModelID is the placeholder model used when the node's roster cannot be fetched.
const DefaultModelID = "default-model"

// Model describes one entry of the node's model roster.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// NodeConfig is the node's published configuration document (config_pub.json).
// The document is passed through untouched; only system_prompt is interpreted.
type NodeConfig map[string]any

// SystemPrompt returns the node's default system prompt, if published.
func (c NodeConfig) SystemPrompt() string {
	if c == nil {
		return ""
	}
	if s, ok := c["system_prompt"].(string); ok {
		return s
	}
	return ""
}

// ChatTurn is one role/content pair sent to the completion endpoint.
type ChatTurn struct {
	Role    string
	Content string
}

// CompletionRequest is a single chat-completion call.
type CompletionRequest struct {
	Model       string
	Messages    []ChatTurn
	Temperature float64
	MaxTokens   int64
}

// CompletionResult is the reply of a chat-completion call.
type CompletionResult struct {
	Content     string
	TotalTokens int64
	Model       string
}

// NodeBackend is the remote inference node as seen by the chat gateway.
type NodeBackend interface {
	ListModels(ctx context.Context) ([]Model, error)
	FetchNodeConfig(ctx context.Context) (NodeConfig, error)
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	BaseURL() string
}
