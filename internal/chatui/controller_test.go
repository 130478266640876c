package chatui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaiachat/internal/client"
	"gaiachat/internal/network"
	"gaiachat/internal/services"
	"gaiachat/internal/wallet"
	"gaiachat/pkg/gaiatypes"
)

const testWallet = "0x1111111111111111111111111111111111111111"

type fakeAPI struct {
	mu       sync.Mutex
	reply    string
	sendErr  error
	gate     chan struct{}
	sent     []gaiatypes.SendMessageRequest
	stored   []gaiatypes.ExportRequest
	storeErr error
	custom   *string
	listed   string
}

func (f *fakeAPI) Config(context.Context) (*gaiatypes.ClientConfig, error) {
	return &gaiatypes.ClientConfig{GaiaNodeURL: "http://node"}, nil
}

func (f *fakeAPI) Models(context.Context) ([]gaiatypes.Model, error) {
	return []gaiatypes.Model{{ID: "llama-3-8b"}, {ID: "qwen-2"}}, nil
}

func (f *fakeAPI) SystemPrompt(context.Context) (*gaiatypes.SystemPromptInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := "node prompt"
	if f.custom != nil {
		current = *f.custom
	}
	return &gaiatypes.SystemPromptInfo{NodeSystemPrompt: "node prompt", CustomSystemPrompt: f.custom, CurrentSystemPrompt: current}, nil
}

func (f *fakeAPI) SetSystemPrompt(_ context.Context, prompt string) (*gaiatypes.SystemPromptUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = &prompt
	return &gaiatypes.SystemPromptUpdate{Success: true, CustomSystemPrompt: f.custom}, nil
}

func (f *fakeAPI) ResetSystemPrompt(context.Context) (*gaiatypes.SystemPromptUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = nil
	return &gaiatypes.SystemPromptUpdate{Success: true}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req gaiatypes.SendMessageRequest) (*gaiatypes.SendMessageResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	gate, reply, err := f.gate, f.reply, f.sendErr
	n := int64(len(f.sent))
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &gaiatypes.SendMessageResult{Response: reply, SessionID: req.SessionID, TotalTokens: 12 * n, TokensUsed: 12, Model: "qwen-2"}, nil
}

func (f *fakeAPI) Session(_ context.Context, id string) (*gaiatypes.Session, error) {
	return &gaiatypes.Session{Model: id}, nil
}

func (f *fakeAPI) NodeConfig(context.Context) (gaiatypes.NodeConfig, error) {
	return gaiatypes.NodeConfig{"system_prompt": "node prompt"}, nil
}

func (f *fakeAPI) StoreChat(_ context.Context, req gaiatypes.ExportRequest) (*gaiatypes.StorageReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, req)
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return &gaiatypes.StorageReceipt{Success: true, CID: "bafkrtest"}, nil
}

func (f *fakeAPI) MyFiles(_ context.Context, wallet string, page, limit int) (*gaiatypes.FilesPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = wallet
	return &gaiatypes.FilesPage{WalletAddress: wallet, Page: page, Limit: limit}, nil
}

func (f *fakeAPI) Download(_ context.Context, cid string) ([]byte, error) {
	return []byte(`{"cid":"` + cid + `"}`), nil
}

func newController(t *testing.T, api *fakeAPI, chainID int64) (*Controller, *wallet.LocalProvider) {
	t.Helper()
	chain := network.MustDefault()
	provider := wallet.NewLocalProvider(testWallet, chainID)
	machine := wallet.NewMachine(provider, chain)
	if chainID != 0 {
		machine.Apply(wallet.Event{Kind: wallet.EventConnected, Accounts: []string{testWallet}, ChainID: chainID})
	}
	c := NewController(api, machine, Options{SessionID: "s1", Renderer: services.NewMarkdownService()})
	return c, provider
}

func TestController_LoadPicksFirstModel(t *testing.T) {
	c, _ := newController(t, &fakeAPI{}, 0)

	info, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://node", info.GaiaNodeURL)
	assert.Len(t, info.Models, 2)
	assert.Equal(t, "node prompt", info.Prompt.CurrentSystemPrompt)
	assert.Equal(t, "llama-3-8b", c.Model())
}

func TestController_GeneratesSessionID(t *testing.T) {
	machine := wallet.NewMachine(wallet.NewLocalProvider(testWallet, 1), network.MustDefault())
	a := NewController(&fakeAPI{}, machine, Options{})
	b := NewController(&fakeAPI{}, machine, Options{})
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestController_InputFollowsWallet(t *testing.T) {
	chain := network.MustDefault()

	c, _ := newController(t, &fakeAPI{}, 0)
	assert.Equal(t, InputHint{Placeholder: "Connect your wallet to start chatting...", Send: Button{Label: "Connect Wallet"}}, c.Input())

	c, _ = newController(t, &fakeAPI{}, 1)
	assert.Equal(t, "Switch to Autonomys EVM to chat...", c.Input().Placeholder)
	assert.False(t, c.Input().Send.Enabled)

	c, _ = newController(t, &fakeAPI{}, chain.ChainID)
	assert.Equal(t, InputHint{Placeholder: "Type your message...", Send: Button{Label: "Send", Enabled: true}}, c.Input())
}

func TestController_SendRequiresReadyWallet(t *testing.T) {
	api := &fakeAPI{reply: "<p>hi</p>"}

	c, _ := newController(t, api, 0)
	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	c, _ = newController(t, api, 1)
	_, err = c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Contains(t, err.Error(), "Chain ID: 490000")

	assert.Empty(t, api.sent)
	assert.Empty(t, c.Entries())
}

func TestController_SendEmptyMessage(t *testing.T) {
	c, _ := newController(t, &fakeAPI{}, network.MustDefault().ChainID)
	_, err := c.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestController_SendShowsPlaceholderThenReply(t *testing.T) {
	api := &fakeAPI{reply: "<p>Hello <strong>there</strong> &amp; welcome</p>\n", gate: make(chan struct{})}
	c, _ := newController(t, api, network.MustDefault().ChainID)

	changed := make(chan []Entry, 4)
	c.OnChange(func() { changed <- c.Entries() })

	done := make(chan Entry, 1)
	go func() {
		entry, err := c.Send(context.Background(), "  hi  ")
		assert.NoError(t, err)
		done <- entry
	}()

	pending := waitEntries(t, changed)
	require.Len(t, pending, 2)
	assert.Equal(t, Entry{ID: 1, Role: gaiatypes.RoleUser, Content: "hi"}, pending[0])
	assert.Equal(t, Entry{ID: 2, Role: gaiatypes.RoleAssistant, Content: ThinkingPlaceholder, Pending: true}, pending[1])

	close(api.gate)
	reply := <-done
	assert.Equal(t, "Hello there & welcome", reply.Content)

	final := waitEntries(t, changed)
	require.Len(t, final, 2, "the placeholder is replaced, not appended to")
	assert.Equal(t, reply, final[1])

	assert.Equal(t, int64(12), c.TotalTokens())
	assert.Equal(t, "qwen-2", c.Model())
	assert.True(t, c.HasConversation())

	require.Len(t, api.sent, 1)
	assert.Equal(t, gaiatypes.SendMessageRequest{Message: "hi", SessionID: "s1", WalletAddress: testWallet}, api.sent[0])
}

func TestController_SendErrorReplacesPlaceholder(t *testing.T) {
	api := &fakeAPI{sendErr: &client.APIError{
		StatusCode: http.StatusInternalServerError,
		Body:       gaiatypes.ErrorResponse{Error: "Failed to process chat message", Details: "node overloaded"},
	}}
	c, _ := newController(t, api, network.MustDefault().ChainID)

	entry, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, "Error: Failed to process chat message", entry.Content)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[1].Pending)
	assert.False(t, c.HasConversation())

	api.sendErr = errors.New("connection refused")
	entry, _ = c.Send(context.Background(), "again")
	assert.Equal(t, "Error: connection refused", entry.Content)
}

func TestController_StoreButton(t *testing.T) {
	chain := network.MustDefault()

	c, _ := newController(t, &fakeAPI{}, 0)
	assert.Equal(t, Button{Label: "Connect Wallet to Store"}, c.StoreButton())

	c, _ = newController(t, &fakeAPI{}, 1)
	assert.Equal(t, Button{Label: "Switch to Autonomys EVM"}, c.StoreButton())

	c, _ = newController(t, &fakeAPI{reply: "ok"}, chain.ChainID)
	assert.Equal(t, Button{Label: "Start Conversation to Store"}, c.StoreButton())

	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Button{Label: "Store Chat (~0.001 tAI3)", Enabled: true}, c.StoreButton())
}

func TestController_EstimateStorage(t *testing.T) {
	c, _ := newController(t, &fakeAPI{reply: "ok"}, network.MustDefault().ChainID)
	assert.Equal(t, Estimate{SizeKB: 0.49, Cost: 0.001}, c.EstimateStorage())

	_, err := c.Send(context.Background(), strings.Repeat("a", 5000))
	require.NoError(t, err)

	est := c.EstimateStorage()
	assert.Equal(t, 10.26, est.SizeKB)
	assert.Equal(t, 0.010258, est.Cost)
	assert.Equal(t, "Store Chat (~0.010258 tAI3)", c.StoreButton().Label)
}

func TestController_Store(t *testing.T) {
	chain := network.MustDefault()
	api := &fakeAPI{reply: "ok"}
	c, _ := newController(t, api, chain.ChainID)

	_, err := c.Store(context.Background())
	assert.ErrorIs(t, err, ErrNoConversation)

	_, err = c.Send(context.Background(), "hello")
	require.NoError(t, err)

	receipt, err := c.Store(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bafkrtest", receipt.CID)

	require.Len(t, api.stored, 1)
	assert.Equal(t, "s1", api.stored[0].SessionID)
	assert.Equal(t, testWallet, api.stored[0].WalletAddress)
	n, ok := api.stored[0].NetworkID.Number()
	assert.True(t, ok)
	assert.Equal(t, chain.ChainID, n)

	assert.True(t, c.StoreButton().Enabled, "the button is re-enabled after storing")
}

func TestController_StoreFailure(t *testing.T) {
	api := &fakeAPI{reply: "ok", storeErr: &client.APIError{StatusCode: 500, Body: gaiatypes.ErrorResponse{Error: "Failed to store chat on AutoDrive"}}}
	c, _ := newController(t, api, network.MustDefault().ChainID)
	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)

	_, err = c.Store(context.Background())
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "Failed to store chat on AutoDrive")
}

func TestController_WalletChangesGateActions(t *testing.T) {
	chain := network.MustDefault()
	api := &fakeAPI{reply: "ok"}
	c, provider := newController(t, api, chain.ChainID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := make(chan wallet.State, 4)
	c.Wallet().Watch(func(_, next wallet.State) { states <- next })
	go func() { _ = c.Wallet().Run(ctx) }()

	provider.SetChain(1)
	select {
	case s := <-states:
		assert.Equal(t, wallet.StatusWrongNetwork, s.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("chain change not applied")
	}

	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrWrongNetwork)
}

func TestController_History(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newController(t, api, 0)
	_, err := c.History(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrWalletNotConnected)

	c, _ = newController(t, api, 1)
	page, err := c.History(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, testWallet, page.WalletAddress)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 5, page.Limit)
}

func TestController_PromptLifecycle(t *testing.T) {
	c, _ := newController(t, &fakeAPI{}, 0)
	ctx := context.Background()

	info, err := c.SetPrompt(ctx, "  be brief  ")
	require.NoError(t, err)
	assert.Equal(t, "be brief", info.CurrentSystemPrompt)
	require.NotNil(t, info.CustomSystemPrompt)

	info, err = c.ResetPrompt(ctx)
	require.NoError(t, err)
	assert.Nil(t, info.CustomSystemPrompt)
	assert.Equal(t, "node prompt", info.CurrentSystemPrompt)
}

func TestController_Download(t *testing.T) {
	c, _ := newController(t, &fakeAPI{}, 0)
	_, err := c.Download(context.Background(), " ")
	assert.Error(t, err)

	data, err := c.Download(context.Background(), "bafkr1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "bafkr1")
}

func waitEntries(t *testing.T, ch <-chan []Entry) []Entry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a conversation change")
		return nil
	}
}
