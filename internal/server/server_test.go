package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gaiachat/internal/network"
	"gaiachat/internal/services"
	"gaiachat/internal/state"
	"gaiachat/internal/testutils"
	"gaiachat/pkg/gaiatypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive connections to the fake upstreams wind down asynchronously.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const wallet = "0x1111111111111111111111111111111111111111"

type fixture struct {
	node    *testutils.FakeGaiaNode
	drive   *testutils.FakeAutoDrive
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := testutils.NewFakeGaiaNode(t)
	drive := testutils.NewFakeAutoDrive(t)
	chain := network.MustDefault()
	store := state.NewSessionStore()

	chat := services.NewChatService(
		services.NewGaiaNodeClient(services.GaiaNodeConfig{BaseURL: node.URL()}),
		store, state.NewPromptOverride(), services.NewMarkdownService(),
		services.ChatServiceOptions{ModelCacheTTL: time.Minute, NodeConfigTTL: time.Minute},
	)
	transcripts := services.NewTranscriptService(store,
		services.NewLazyAutoDrive(services.AutoDriveConfig{APIKey: testutils.FakeAutoDriveKey, APIURL: drive.URL()}),
		services.TranscriptServiceOptions{Chain: chain, GatewayURL: "https://gateway.autonomys.xyz", GaiaNodeURL: node.URL()},
	)

	srv := New(chat, transcripts, Options{GaiaNodeURL: node.URL(), ReownProjectID: "reown-123", Chain: chain})
	return &fixture{node: node, drive: drive, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		r = testutils.JSONBody(t, b)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	return testutils.DecodeJSON[T](t, rec.Body)
}

func (f *fixture) sendMessage(t *testing.T, sessionID, message string) gaiatypes.SendMessageResult {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/chat/message", gaiatypes.SendMessageRequest{Message: message, SessionID: sessionID, WalletAddress: wallet})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[gaiatypes.SendMessageResult](t, rec)
}

func TestHealthAndConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[gaiatypes.Health](t, rec)
	assert.True(t, health.OK)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 0, health.Sessions)

	rec = f.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[gaiatypes.ClientConfig](t, rec)
	assert.Equal(t, f.node.URL(), cfg.GaiaNodeURL)
	assert.Equal(t, "reown-123", cfg.ReownProjectID)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/message", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestModels(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chat/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var models []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Len(t, models, 2)
	assert.Equal(t, "llama-3-8b", models[0]["id"])
	assert.Equal(t, "gaia", models[0]["owned_by"])
}

func TestMessageFlow(t *testing.T) {
	f := newFixture(t)

	res := f.sendMessage(t, "s1", "hello")
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, "<p>Echo: hello</p>\n", res.Response)
	assert.Equal(t, res.TokensUsed, res.TotalTokens)

	res2 := f.sendMessage(t, "s1", "again")
	assert.Equal(t, res.TokensUsed+res2.TokensUsed, res2.TotalTokens)

	rec := f.do(t, http.MethodGet, "/api/chat/session/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[gaiatypes.Session](t, rec)
	assert.Len(t, session.Messages, 4)
	assert.Equal(t, res2.TotalTokens, session.TotalTokens)
	assert.Equal(t, wallet, session.WalletAddress)

	health := decode[gaiatypes.Health](t, f.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, 1, health.Sessions)
}

func TestMessageValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat/message", map[string]string{"sessionId": "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message is required", decode[gaiatypes.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/chat/message", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.node.FailCompletions(http.StatusServiceUnavailable, "overloaded")

	rec := f.do(t, http.MethodPost, "/api/chat/message", gaiatypes.SendMessageRequest{Message: "hi", SessionID: "s1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode[gaiatypes.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to process chat message", body.Error)
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
	assert.NotEmpty(t, body.Details)

	session := decode[gaiatypes.Session](t, f.do(t, http.MethodGet, "/api/chat/session/s1", nil))
	require.Len(t, session.Messages, 1)
	assert.Equal(t, gaiatypes.RoleUser, session.Messages[0].Role)
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chat/session/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decode[gaiatypes.ErrorResponse](t, rec).Error)
}

func TestSystemPromptLifecycle(t *testing.T) {
	f := newFixture(t)

	info := decode[gaiatypes.SystemPromptInfo](t, f.do(t, http.MethodGet, "/api/chat/system-prompt", nil))
	assert.Equal(t, testutils.DefaultNodePrompt, info.NodeSystemPrompt)
	assert.Nil(t, info.CustomSystemPrompt)

	rec := f.do(t, http.MethodPost, "/api/chat/system-prompt", map[string]any{"systemPrompt": "  Pirate mode  "})
	require.Equal(t, http.StatusOK, rec.Code)
	update := decode[gaiatypes.SystemPromptUpdate](t, rec)
	assert.True(t, update.Success)
	require.NotNil(t, update.CustomSystemPrompt)
	assert.Equal(t, "Pirate mode", *update.CustomSystemPrompt)
	assert.Equal(t, "Custom system prompt updated", update.Message)

	f.sendMessage(t, "s1", "ahoy")
	calls := f.node.Completions()
	assert.Equal(t, "Pirate mode", calls[len(calls)-1].Messages[0].Content)

	rec = f.do(t, http.MethodDelete, "/api/chat/system-prompt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Custom system prompt cleared, using node default", decode[gaiatypes.SystemPromptUpdate](t, rec).Message)

	f.sendMessage(t, "s1", "back")
	calls = f.node.Completions()
	assert.Equal(t, testutils.DefaultNodePrompt, calls[len(calls)-1].Messages[0].Content)
}

func TestSystemPromptMustBeString(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat/system-prompt", map[string]any{"systemPrompt": "Keep me."})
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name string
		body string
	}{
		{"number", `{"systemPrompt": 42}`},
		{"missing", `{}`},
		{"null", `{"systemPrompt": null}`},
		{"boolean", `{"systemPrompt": false}`},
		{"array", `{"systemPrompt": ["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/chat/system-prompt", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "System prompt must be a string", decode[gaiatypes.ErrorResponse](t, rec).Error)
		})
	}

	rec = f.do(t, http.MethodGet, "/api/chat/system-prompt", nil)
	info := decode[gaiatypes.SystemPromptInfo](t, rec)
	require.NotNil(t, info.CustomSystemPrompt, "rejected bodies leave the override in place")
	assert.Equal(t, "Keep me.", *info.CustomSystemPrompt)
}

func TestRequestBodyTooLarge(t *testing.T) {
	f := newFixture(t)

	body := `{"message": "` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := f.do(t, http.MethodPost, "/api/chat/message", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decode[gaiatypes.ErrorResponse](t, rec).Error, "request body too large")
	assert.Empty(t, f.node.Completions())
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/storage/store-chat", `{"sessionId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[gaiatypes.ErrorResponse](t, rec).Error, "invalid json")
}

func TestNodeConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chat/node-config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[map[string]any](t, rec)
	assert.Equal(t, testutils.DefaultNodePrompt, cfg["system_prompt"])

	f.node.FailConfig(true)
	rec = f.do(t, http.MethodGet, "/api/chat/node-config", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch node configuration", decode[gaiatypes.ErrorResponse](t, rec).Error)
}

func TestStoreChatAndDownload(t *testing.T) {
	f := newFixture(t)
	res := f.sendMessage(t, "s1", "store me")

	rec := f.do(t, http.MethodPost, "/api/storage/store-chat", map[string]any{
		"sessionId":     "s1",
		"walletAddress": wallet,
		"networkId":     "eip155:490000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[gaiatypes.StorageReceipt](t, rec)
	assert.True(t, receipt.Success)
	assert.Equal(t, "https://gateway.autonomys.xyz/file/"+receipt.CID, receipt.GatewayURL)
	assert.Equal(t, "chat-transcript-s1.json", receipt.FileName)

	rec = f.do(t, http.MethodGet, "/api/storage/download/"+receipt.CID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="chat-transcript-`+receipt.CID+`.json"`, rec.Header().Get("Content-Disposition"))

	doc := decode[gaiatypes.Transcript](t, rec)
	assert.Len(t, doc.Messages, 2)
	assert.Equal(t, res.TotalTokens, doc.TotalTokens)

	rec = f.do(t, http.MethodGet, "/api/storage/my-files?walletAddress="+wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[gaiatypes.FilesPage](t, rec)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, wallet, page.WalletAddress)
	require.Len(t, page.Files, 1)
	assert.Equal(t, receipt.GatewayURL, page.Files[0]["gatewayUrl"])
}

func TestStoreChatErrors(t *testing.T) {
	f := newFixture(t)
	f.sendMessage(t, "s1", "hello")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		msg    string
	}{
		{"missing session", map[string]any{"walletAddress": wallet}, http.StatusBadRequest, "Session ID is required"},
		{"missing wallet", map[string]any{"sessionId": "s1"}, http.StatusBadRequest, "Wallet address is required"},
		{"wrong network", map[string]any{"sessionId": "s1", "walletAddress": wallet, "networkId": 1}, http.StatusBadRequest, "Invalid network. Please connect to Autonomys EVM (Chain ID: 490000)."},
		{"numeric string network", map[string]any{"sessionId": "s1", "walletAddress": wallet, "networkId": "490000"}, http.StatusBadRequest, "Invalid network. Please connect to Autonomys EVM (Chain ID: 490000)."},
		{"unknown session", map[string]any{"sessionId": "nope", "walletAddress": wallet}, http.StatusNotFound, "Chat session not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/storage/store-chat", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode[gaiatypes.ErrorResponse](t, rec).Error)
		})
	}
}

func TestStoreChatUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.sendMessage(t, "s1", "hello")
	f.drive.FailUploads(true)

	rec := f.do(t, http.MethodPost, "/api/storage/store-chat", map[string]any{"sessionId": "s1", "walletAddress": wallet, "networkId": 490000})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[gaiatypes.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to store chat transcript", body.Error)
	assert.Equal(t, "storage quota exceeded", body.Details)
}

func TestMyFilesRequiresWallet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/storage/my-files", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Wallet address is required", decode[gaiatypes.ErrorResponse](t, rec).Error)
}

func TestDownloadFailure(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/storage/download/missing", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to download file", decode[gaiatypes.ErrorResponse](t, rec).Error)
}

func TestConcurrentMessagesSameSession(t *testing.T) {
	f := newFixture(t)
	f.node.SetDelay(20 * time.Millisecond)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	tokens := make([]int64, 2)
	for i := range 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/chat/message",
				strings.NewReader(`{"message":"msg","sessionId":"race"}`))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
			var res gaiatypes.SendMessageResult
			if json.Unmarshal(rec.Body.Bytes(), &res) == nil {
				tokens[i] = res.TokensUsed
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	session := decode[gaiatypes.Session](t, f.do(t, http.MethodGet, "/api/chat/session/race", nil))
	require.Len(t, session.Messages, 4)
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, []string{
		session.Messages[0].Role, session.Messages[1].Role, session.Messages[2].Role, session.Messages[3].Role,
	})
	assert.Equal(t, tokens[0]+tokens[1], session.TotalTokens)
}

func TestListenAndServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	chat := services.NewChatService(services.NewGaiaNodeClient(services.GaiaNodeConfig{}), state.NewSessionStore(), state.NewPromptOverride(), services.NewMarkdownService(), services.ChatServiceOptions{})
	s := New(chat, nil, Options{Chain: network.MustDefault()})
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
