package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaiachat/internal/testutils"
	"gaiachat/pkg/gaiatypes"
)

func TestGaiaNodeClient_Complete(t *testing.T) {
	node := testutils.NewFakeGaiaNode(t)
	client := NewGaiaNodeClient(GaiaNodeConfig{BaseURL: node.URL() + "/"})
	assert.Equal(t, node.URL(), client.BaseURL())

	res, err := client.Complete(context.Background(), gaiatypes.CompletionRequest{
		Model: "llama-3-8b",
		Messages: []gaiatypes.ChatTurn{
			{Role: gaiatypes.RoleSystem, Content: "sys"},
			{Role: gaiatypes.RoleUser, Content: "q1"},
			{Role: gaiatypes.RoleAssistant, Content: "a1"},
			{Role: gaiatypes.RoleUser, Content: "q2"},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Echo: q2", res.Content)
	assert.Equal(t, int64(14), res.TotalTokens)
	assert.Equal(t, "llama-3-8b", res.Model)

	calls := node.Completions()
	require.Len(t, calls, 1)
	assert.Equal(t, []testutils.CompletionTurn{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}, calls[0].Messages)
}

func TestGaiaNodeClient_CompleteFailsOnceWithoutRetry(t *testing.T) {
	node := testutils.NewFakeGaiaNode(t)
	node.FailCompletions(http.StatusTooManyRequests, "rate_limited")
	client := NewGaiaNodeClient(GaiaNodeConfig{BaseURL: node.URL()})

	_, err := client.Complete(context.Background(), gaiatypes.CompletionRequest{Model: "m", Messages: []gaiatypes.ChatTurn{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, gaiatypes.ErrUpstream)
	assert.Len(t, node.Completions(), 1)
}

func TestGaiaNodeClient_FetchNodeConfig(t *testing.T) {
	node := testutils.NewFakeGaiaNode(t)
	client := NewGaiaNodeClient(GaiaNodeConfig{BaseURL: node.URL()})

	cfg, err := client.FetchNodeConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutils.DefaultNodePrompt, cfg.SystemPrompt())
	assert.Equal(t, 1, node.ConfigCalls())
}

func TestGaiaNodeClient_FetchNodeConfigMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)
	client := NewGaiaNodeClient(GaiaNodeConfig{BaseURL: srv.URL})

	_, err := client.FetchNodeConfig(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gaiatypes.ErrUpstream)
	assert.Contains(t, err.Error(), "malformed config")
}

func TestGaiaNodeClient_MissingURL(t *testing.T) {
	client := NewGaiaNodeClient(GaiaNodeConfig{})

	_, err := client.FetchNodeConfig(context.Background())
	assert.ErrorIs(t, err, gaiatypes.ErrConfiguration)
	_, err = client.ListModels(context.Background())
	assert.ErrorIs(t, err, gaiatypes.ErrConfiguration)
	_, err = client.Complete(context.Background(), gaiatypes.CompletionRequest{})
	assert.ErrorIs(t, err, gaiatypes.ErrConfiguration)
}
