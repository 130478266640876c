// Package chatui holds the client-side chat surface: the message list with its
// optimistic placeholder, wallet gating of chat and storage actions, and the
// storage cost preview. Front-ends (the terminal shell) render its state.
package chatui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"gaiachat/internal/client"
	"gaiachat/internal/logger"
	"gaiachat/internal/network"
	"gaiachat/internal/wallet"
	"gaiachat/pkg/gaiatypes"
)

// ThinkingPlaceholder is shown while a reply is pending.
const ThinkingPlaceholder = "Thinking..."

// Gating errors returned before any request is made.
var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrWalletNotConnected = errors.New("please connect your wallet first")
	ErrWrongNetwork       = errors.New("wrong network")
	ErrNoConversation     = errors.New("please have a conversation with the AI before storing")
	ErrStoreInProgress    = errors.New("a transcript is already being stored")
)

// API is the subset of the gaiachat HTTP API the controller drives.
type API interface {
	Config(ctx context.Context) (*gaiatypes.ClientConfig, error)
	Models(ctx context.Context) ([]gaiatypes.Model, error)
	SystemPrompt(ctx context.Context) (*gaiatypes.SystemPromptInfo, error)
	SetSystemPrompt(ctx context.Context, prompt string) (*gaiatypes.SystemPromptUpdate, error)
	ResetSystemPrompt(ctx context.Context) (*gaiatypes.SystemPromptUpdate, error)
	SendMessage(ctx context.Context, req gaiatypes.SendMessageRequest) (*gaiatypes.SendMessageResult, error)
	Session(ctx context.Context, id string) (*gaiatypes.Session, error)
	NodeConfig(ctx context.Context) (gaiatypes.NodeConfig, error)
	StoreChat(ctx context.Context, req gaiatypes.ExportRequest) (*gaiatypes.StorageReceipt, error)
	MyFiles(ctx context.Context, wallet string, page, limit int) (*gaiatypes.FilesPage, error)
	Download(ctx context.Context, cid string) ([]byte, error)
}

// TextRenderer turns rendered reply HTML into display text.
type TextRenderer interface {
	PlainText(rendered string) string
}

// Entry is one line of the visible conversation.
type Entry struct {
	ID      int
	Role    string
	Content string
	Pending bool
}

// Button is a labelled action and whether it can be pressed.
type Button struct {
	Label   string
	Enabled bool
}

// InputHint describes the chat input and send button for the current wallet state.
type InputHint struct {
	Placeholder string
	Send        Button
}

// NodeInfo is what the controller learns about the node at start-up.
type NodeInfo struct {
	GaiaNodeURL string
	Models      []gaiatypes.Model
	Prompt      *gaiatypes.SystemPromptInfo
}

// Options configures a Controller.
type Options struct {
	// SessionID defaults to a random UUID.
	SessionID string
	// Renderer strips reply HTML; nil shows replies as received.
	Renderer TextRenderer
}

// Controller is the chat surface state.
type Controller struct {
	api      API
	wallet   *wallet.Machine
	chain    network.Chain
	renderer TextRenderer
	logger   *log.Logger

	sessionID string

	mu              sync.Mutex
	entries         []Entry
	nextID          int
	totalTokens     int64
	model           string
	hasConversation bool
	storing         bool
	onChange        []func()
}

// NewController creates a controller for one chat session.
func NewController(api API, machine *wallet.Machine, opts Options) *Controller {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Controller{
		api:       api,
		wallet:    machine,
		chain:     machine.Chain(),
		renderer:  opts.Renderer,
		logger:    logger.NewStyledLogger("ChatUI"),
		sessionID: sessionID,
	}
}

// SessionID returns the server-side session key.
func (c *Controller) SessionID() string { return c.sessionID }

// Wallet returns the wallet state machine.
func (c *Controller) Wallet() *wallet.Machine { return c.wallet }

// OnChange registers fn to run whenever the conversation changes.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Load fetches the client configuration, model roster and prompt. The first
// model becomes the current one.
func (c *Controller) Load(ctx context.Context) (*NodeInfo, error) {
	cfg, err := c.api.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	info := &NodeInfo{GaiaNodeURL: cfg.GaiaNodeURL}

	models, err := c.api.Models(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to load models: %w", err)
	}
	info.Models = models
	if len(models) > 0 {
		c.mu.Lock()
		c.model = models[0].ID
		c.mu.Unlock()
	}

	prompt, err := c.api.SystemPrompt(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to load system prompt: %w", err)
	}
	info.Prompt = prompt
	return info, nil
}

// Entries returns a copy of the visible conversation.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// TotalTokens is the session's cumulative usage as last reported by the server.
func (c *Controller) TotalTokens() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTokens
}

// Model is the model that answered last, or the first model of the roster.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// HasConversation reports whether at least one reply has arrived.
func (c *Controller) HasConversation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasConversation
}

// Input describes the chat input for the current wallet state.
func (c *Controller) Input() InputHint {
	state := c.wallet.State()
	switch {
	case state.Ready():
		return InputHint{Placeholder: "Type your message...", Send: Button{Label: "Send", Enabled: true}}
	case state.IsConnected():
		return InputHint{
			Placeholder: fmt.Sprintf("Switch to %s to chat...", c.chain.Name),
			Send:        Button{Label: "Wrong Network"},
		}
	default:
		return InputHint{Placeholder: "Connect your wallet to start chatting...", Send: Button{Label: "Connect Wallet"}}
	}
}

// Send posts one message. The user entry and a placeholder are added before the
// request; the placeholder is then replaced by the reply or by an error entry.
func (c *Controller) Send(ctx context.Context, text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}
	state := c.wallet.State()
	if err := c.requireReady(state, "to start chatting"); err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	c.appendLocked(gaiatypes.RoleUser, text, false)
	placeholder := c.appendLocked(gaiatypes.RoleAssistant, ThinkingPlaceholder, true)
	c.mu.Unlock()
	c.notify()

	res, err := c.api.SendMessage(ctx, gaiatypes.SendMessageRequest{
		Message:       text,
		SessionID:     c.sessionID,
		WalletAddress: state.Address,
	})

	c.mu.Lock()
	var reply Entry
	if err != nil {
		reply = c.replaceLocked(placeholder, "Error: "+errorText(err))
	} else {
		reply = c.replaceLocked(placeholder, c.display(res.Response))
		c.hasConversation = true
		c.totalTokens = res.TotalTokens
		if res.Model != "" {
			c.model = res.Model
		}
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Warn("Chat message failed", "session", c.sessionID, "error", err)
		return reply, err
	}
	return reply, nil
}

// Estimate is the local storage preview.
type Estimate struct {
	SizeKB float64
	Cost   float64
}

// EstimateStorage previews the transcript size from the visible conversation:
// two bytes per character plus 500 bytes of structure, at least 0.1 KB.
func (c *Controller) EstimateStorage() Estimate {
	c.mu.Lock()
	chars := 0
	for _, e := range c.entries {
		chars += len([]rune(e.Content))
	}
	c.mu.Unlock()

	sizeKB := float64(chars*2+500) / 1024
	if sizeKB < 0.1 {
		sizeKB = 0.1
	}
	cost := sizeKB * c.chain.Storage.RatePerKB
	if cost < c.chain.Storage.MinimumCost {
		cost = c.chain.Storage.MinimumCost
	}
	return Estimate{SizeKB: network.Round(sizeKB, 2), Cost: network.Round(cost, 6)}
}

// StoreButton labels the store action for the current wallet and conversation state.
func (c *Controller) StoreButton() Button {
	state := c.wallet.State()
	c.mu.Lock()
	storing, has := c.storing, c.hasConversation
	c.mu.Unlock()

	switch {
	case storing:
		return Button{Label: "Storing..."}
	case !state.IsConnected():
		return Button{Label: "Connect Wallet to Store"}
	case !state.Ready():
		return Button{Label: "Switch to " + c.chain.Name}
	case !has:
		return Button{Label: "Start Conversation to Store"}
	}
	est := c.EstimateStorage()
	label := fmt.Sprintf("Store Chat (~%s %s)", strconv.FormatFloat(est.Cost, 'f', -1, 64), c.chain.Currency.Symbol)
	return Button{Label: label, Enabled: true}
}

// Store uploads the session transcript for the connected wallet.
func (c *Controller) Store(ctx context.Context) (*gaiatypes.StorageReceipt, error) {
	state := c.wallet.State()
	if err := c.requireReady(state, "to store chat transcripts"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	switch {
	case !c.hasConversation:
		c.mu.Unlock()
		return nil, ErrNoConversation
	case c.storing:
		c.mu.Unlock()
		return nil, ErrStoreInProgress
	}
	c.storing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.storing = false
		c.mu.Unlock()
	}()

	receipt, err := c.api.StoreChat(ctx, gaiatypes.ExportRequest{
		SessionID:     c.sessionID,
		WalletAddress: state.Address,
		NetworkID:     gaiatypes.NumericNetworkID(state.ChainID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store chat: %w", err)
	}
	c.logger.Info("Transcript stored", "session", c.sessionID, "cid", receipt.CID)
	return receipt, nil
}

// History lists the transcripts stored by the connected wallet.
func (c *Controller) History(ctx context.Context, page, limit int) (*gaiatypes.FilesPage, error) {
	state := c.wallet.State()
	if !state.IsConnected() {
		return nil, ErrWalletNotConnected
	}
	return c.api.MyFiles(ctx, state.Address, page, limit)
}

// Download fetches a stored transcript.
func (c *Controller) Download(ctx context.Context, cid string) ([]byte, error) {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return nil, errors.New("a CID is required")
	}
	return c.api.Download(ctx, cid)
}

// Session fetches this session as the server sees it.
func (c *Controller) Session(ctx context.Context) (*gaiatypes.Session, error) {
	return c.api.Session(ctx, c.sessionID)
}

// Prompt returns the prompt sources.
func (c *Controller) Prompt(ctx context.Context) (*gaiatypes.SystemPromptInfo, error) {
	return c.api.SystemPrompt(ctx)
}

// SetPrompt overrides the system prompt for every session and returns the new sources.
func (c *Controller) SetPrompt(ctx context.Context, text string) (*gaiatypes.SystemPromptInfo, error) {
	if _, err := c.api.SetSystemPrompt(ctx, strings.TrimSpace(text)); err != nil {
		return nil, fmt.Errorf("failed to update system prompt: %w", err)
	}
	return c.api.SystemPrompt(ctx)
}

// ResetPrompt clears the override and returns the new sources.
func (c *Controller) ResetPrompt(ctx context.Context) (*gaiatypes.SystemPromptInfo, error) {
	if _, err := c.api.ResetSystemPrompt(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset system prompt: %w", err)
	}
	return c.api.SystemPrompt(ctx)
}

// Models lists the node's models.
func (c *Controller) Models(ctx context.Context) ([]gaiatypes.Model, error) {
	return c.api.Models(ctx)
}

// NodeConfig fetches the node's published configuration.
func (c *Controller) NodeConfig(ctx context.Context) (gaiatypes.NodeConfig, error) {
	return c.api.NodeConfig(ctx)
}

func (c *Controller) requireReady(state wallet.State, action string) error {
	if !state.IsConnected() {
		return ErrWalletNotConnected
	}
	if !state.Ready() {
		return fmt.Errorf("%w: please switch to %s (Chain ID: %d) %s", ErrWrongNetwork, c.chain.Name, c.chain.ChainID, action)
	}
	return nil
}

func (c *Controller) appendLocked(role, content string, pending bool) int {
	c.nextID++
	c.entries = append(c.entries, Entry{ID: c.nextID, Role: role, Content: content, Pending: pending})
	return c.nextID
}

// replaceLocked swaps the pending entry for its final content, keeping its position.
func (c *Controller) replaceLocked(id int, content string) Entry {
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Content = content
			c.entries[i].Pending = false
			return c.entries[i]
		}
	}
	entry := Entry{ID: id, Role: gaiatypes.RoleAssistant, Content: content}
	c.entries = append(c.entries, entry)
	return entry
}

func (c *Controller) display(rendered string) string {
	if c.renderer == nil {
		return rendered
	}
	return c.renderer.PlainText(rendered)
}

func (c *Controller) notify() {
	c.mu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// errorText prefers the server's error field over the wrapped details.
func errorText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Body.Error != "" {
		return apiErr.Body.Error
	}
	return err.Error()
}
