package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// DefaultNodePrompt is the system prompt published by a FakeGaiaNode.
const DefaultNodePrompt = "You are a Gaia node assistant."

// CompletionTurn is one message received by the fake node.
type CompletionTurn struct {
	Role    string
	Content string
}

// RecordedCompletion is one chat-completion request received by the fake node.
type RecordedCompletion struct {
	Model       string
	Messages    []CompletionTurn
	Temperature float64
	MaxTokens   int64
}

// ReplyFunc produces the assistant content and total token usage for a request.
type ReplyFunc func(req RecordedCompletion) (content string, totalTokens int64)

// EchoReply answers "Echo: <last message>" and charges ten tokens plus one per message.
func EchoReply(req RecordedCompletion) (string, int64) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return "Echo: " + last, int64(10 + len(req.Messages))
}

// FakeGaiaNode is an OpenAI-compatible node served by httptest.
type FakeGaiaNode struct {
	Server *httptest.Server

	mu           sync.Mutex
	models       []string
	systemPrompt string
	reply        ReplyFunc
	delay        time.Duration
	failStatus   int
	failCode     string
	failModels   bool
	failConfig   bool
	completions  []RecordedCompletion
	modelCalls   int
	configCalls  int
}

// NewFakeGaiaNode starts a fake node that is closed when the test ends.
func NewFakeGaiaNode(t testing.TB) *FakeGaiaNode {
	t.Helper()
	f := &FakeGaiaNode{
		models:       []string{"llama-3-8b", "qwen-2"},
		systemPrompt: DefaultNodePrompt,
		reply:        EchoReply,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", f.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", f.handleCompletion)
	mux.HandleFunc("GET /config_pub.json", f.handleConfig)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the node's base URL.
func (f *FakeGaiaNode) URL() string { return f.Server.URL }

// SetModels replaces the roster.
func (f *FakeGaiaNode) SetModels(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = ids
}

// SetSystemPrompt changes the published prompt; empty omits it from the config.
func (f *FakeGaiaNode) SetSystemPrompt(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemPrompt = p
}

// SetReply replaces the reply generator.
func (f *FakeGaiaNode) SetReply(fn ReplyFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = fn
}

// SetDelay delays every completion.
func (f *FakeGaiaNode) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// FailCompletions makes completions fail with status and code; status 0 restores success.
func (f *FakeGaiaNode) FailCompletions(status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
	f.failCode = code
}

// FailModels makes the roster endpoint fail.
func (f *FakeGaiaNode) FailModels(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failModels = fail
}

// FailConfig makes config_pub.json fail.
func (f *FakeGaiaNode) FailConfig(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failConfig = fail
}

// Completions returns the requests received so far.
func (f *FakeGaiaNode) Completions() []RecordedCompletion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedCompletion(nil), f.completions...)
}

// ModelCalls counts roster requests.
func (f *FakeGaiaNode) ModelCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelCalls
}

// ConfigCalls counts config requests.
func (f *FakeGaiaNode) ConfigCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configCalls
}

func (f *FakeGaiaNode) handleModels(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.modelCalls++
	fail := f.failModels
	ids := append([]string(nil), f.models...)
	f.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusServiceUnavailable, apiError("models unavailable", "server_error", "unavailable"))
		return
	}

	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]any{"id": id, "object": "model", "created": 1700000000, "owned_by": "gaia"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (f *FakeGaiaNode) handleConfig(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.configCalls++
	fail := f.failConfig
	prompt := f.systemPrompt
	f.mu.Unlock()

	if fail {
		http.Error(w, "config unavailable", http.StatusInternalServerError)
		return
	}
	cfg := map[string]any{"chat_model": "llama-3-8b", "description": "fake node"}
	if prompt != "" {
		cfg["system_prompt"] = prompt
	}
	writeJSON(w, http.StatusOK, cfg)
}

type completionBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
}

func (f *FakeGaiaNode) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var body completionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError(err.Error(), "invalid_request_error", "bad_json"))
		return
	}

	rec := RecordedCompletion{Model: body.Model, Temperature: body.Temperature, MaxTokens: body.MaxTokens}
	for _, m := range body.Messages {
		rec.Messages = append(rec.Messages, CompletionTurn{Role: m.Role, Content: contentText(m.Content)})
	}

	f.mu.Lock()
	f.completions = append(f.completions, rec)
	delay, status, code, reply := f.delay, f.failStatus, f.failCode, f.reply
	n := len(f.completions)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		writeJSON(w, status, apiError("node overloaded", "server_error", code))
		return
	}

	content, tokens := reply(rec)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%d", n),
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   body.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     tokens / 2,
			"completion_tokens": tokens - tokens/2,
			"total_tokens":      tokens,
		},
	})
}

// contentText accepts both the string and the content-part array encodings.
func contentText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &parts) == nil {
		out := ""
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return string(raw)
}

func apiError(message, typ, code string) map[string]any {
	return map[string]any{"error": map[string]any{"message": message, "type": typ, "code": code}}
}
