package services

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"gaiachat/internal/logger"
	"gaiachat/internal/state"
	"gaiachat/pkg/gaiatypes"
)

// Sampling parameters applied to every completion.
const (
	ChatTemperature = 0.7
	ChatMaxTokens   = 1000
)

// ChatServiceOptions tunes caching and time for a ChatService.
type ChatServiceOptions struct {
	// ModelCacheTTL and NodeConfigTTL bound how long the roster and node
	// config are reused. Zero keeps the first value for the process lifetime.
	ModelCacheTTL time.Duration
	NodeConfigTTL time.Duration
	Now           func() time.Time
	// NewSessionID names sessions for requests that carry none.
	NewSessionID func() string
}

// ChatService is the inference gateway: it resolves prompt and model, folds
// completions into the session store and exposes the prompt override.
type ChatService struct {
	node     gaiatypes.NodeBackend
	store    *state.SessionStore
	override *state.PromptOverride
	markdown *MarkdownService

	models     *state.TTLCache[[]gaiatypes.Model]
	nodeConfig *state.TTLCache[gaiatypes.NodeConfig]

	now   func() time.Time
	newID func() string
	log   *log.Logger
}

// NewChatService wires a ChatService.
func NewChatService(node gaiatypes.NodeBackend, store *state.SessionStore, override *state.PromptOverride, markdown *MarkdownService, opts ChatServiceOptions) *ChatService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewSessionID
	if newID == nil {
		newID = uuid.NewString
	}
	s := &ChatService{
		node:     node,
		store:    store,
		override: override,
		markdown: markdown,
		now:      now,
		newID:    newID,
		log:      logger.NewStyledLogger("Chat"),
	}
	s.models = state.NewTTLCache(opts.ModelCacheTTL, s.loadModels).WithClock(now)
	s.nodeConfig = state.NewTTLCache(opts.NodeConfigTTL, s.loadNodeConfig).WithClock(now)
	return s
}

// Name returns the service name "chat" for registration.
func (s *ChatService) Name() string {
	return "chat"
}

// Initialize checks that the service is fully wired.
func (s *ChatService) Initialize(_ context.Context) error {
	if s.node == nil || s.store == nil || s.override == nil || s.markdown == nil {
		return errors.New("chat service is missing a dependency")
	}
	s.log.Debug("ChatService initialized", "node", s.node.BaseURL())
	return nil
}

// loadModels never fails: an unreachable node yields the placeholder roster,
// which is then cached like a real one.
func (s *ChatService) loadModels(ctx context.Context) ([]gaiatypes.Model, error) {
	models, err := s.node.ListModels(ctx)
	if err != nil {
		s.log.Warn("Could not fetch models", "error", err)
		return []gaiatypes.Model{{ID: gaiatypes.DefaultModelID}}, nil
	}
	return models, nil
}

func (s *ChatService) loadNodeConfig(ctx context.Context) (gaiatypes.NodeConfig, error) {
	cfg, err := s.node.FetchNodeConfig(ctx)
	if err != nil {
		s.log.Warn("Could not fetch node config", "error", err)
		return gaiatypes.NodeConfig{"system_prompt": gaiatypes.DefaultSystemPrompt}, nil
	}
	return cfg, nil
}

// ListModels returns the cached model roster.
func (s *ChatService) ListModels(ctx context.Context) ([]gaiatypes.Model, error) {
	return s.models.Get(ctx)
}

// NodeConfig returns the node configuration. With refresh it bypasses the cache,
// reports fetch failures and stores the fresh document for later prompt resolution.
func (s *ChatService) NodeConfig(ctx context.Context, refresh bool) (gaiatypes.NodeConfig, error) {
	if !refresh {
		return s.nodeConfig.Get(ctx)
	}
	cfg, err := s.node.FetchNodeConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.nodeConfig.Set(cfg)
	return cfg, nil
}

// nodePrompt returns the node's default prompt, falling back to the built-in one.
func (s *ChatService) nodePrompt(ctx context.Context) string {
	cfg, err := s.nodeConfig.Get(ctx)
	if err == nil {
		if p := cfg.SystemPrompt(); p != "" {
			return p
		}
	}
	return gaiatypes.DefaultSystemPrompt
}

// EffectivePrompt resolves override > requested > node default > built-in default.
func (s *ChatService) EffectivePrompt(ctx context.Context, requested string) string {
	if p, ok := s.override.Get(); ok {
		return p
	}
	if requested != "" {
		return requested
	}
	return s.nodePrompt(ctx)
}

// selectModel resolves requested > first roster entry > placeholder.
func (s *ChatService) selectModel(ctx context.Context, requested string) string {
	if requested != "" {
		return requested
	}
	models, err := s.models.Get(ctx)
	if err == nil && len(models) > 0 && models[0].ID != "" {
		return models[0].ID
	}
	return gaiatypes.DefaultModelID
}

// SendMessage runs one exchange. The session lock is held for the whole exchange,
// so concurrent messages on one session are applied one after the other.
func (s *ChatService) SendMessage(ctx context.Context, req gaiatypes.SendMessageRequest) (*gaiatypes.SendMessageResult, error) {
	if req.Message == "" {
		return nil, gaiatypes.NewValidationError("", "Message is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}

	prompt := s.EffectivePrompt(ctx, req.SystemPrompt)
	model := s.selectModel(ctx, req.Model)

	unlock := s.store.Lock(sessionID)
	defer unlock()

	session, ok := s.store.Get(sessionID)
	if !ok {
		session = gaiatypes.NewSession(s.now(), prompt, model, s.node.BaseURL(), req.WalletAddress)
		s.log.Info("Session created", "session", sessionID, "model", model)
	}
	session.SystemPrompt = prompt
	if req.WalletAddress != "" {
		session.WalletAddress = req.WalletAddress
	}
	session.AppendMessage(gaiatypes.RoleUser, req.Message, s.now())
	s.store.Upsert(sessionID, session)

	turns := make([]gaiatypes.ChatTurn, 0, len(session.Messages)+1)
	turns = append(turns, gaiatypes.ChatTurn{Role: gaiatypes.RoleSystem, Content: prompt})
	for _, m := range session.Messages {
		turns = append(turns, gaiatypes.ChatTurn{Role: m.Role, Content: m.Content})
	}

	result, err := s.node.Complete(ctx, gaiatypes.CompletionRequest{
		Model:       model,
		Messages:    turns,
		Temperature: ChatTemperature,
		MaxTokens:   ChatMaxTokens,
	})
	if err != nil {
		s.log.Error("Completion failed", "session", sessionID, "model", model, "error", err)
		return nil, asUpstream(gaiaServiceName, "chat completion", err)
	}

	rendered, err := s.markdown.Render(result.Content)
	if err != nil {
		return nil, err
	}

	at := s.now()
	session.AppendMessage(gaiatypes.RoleAssistant, rendered, at)
	session.AddTokens(result.TotalTokens)
	session.Touch(at)
	session.Model = model
	s.store.Upsert(sessionID, session)

	s.log.Debug("Exchange complete", "session", sessionID, "tokens", result.TotalTokens, "total", session.TotalTokens)
	return &gaiatypes.SendMessageResult{
		Response:    rendered,
		SessionID:   sessionID,
		TotalTokens: session.TotalTokens,
		TokensUsed:  result.TotalTokens,
		Model:       model,
	}, nil
}

// GetSession returns a copy of the session.
func (s *ChatService) GetSession(id string) (*gaiatypes.Session, error) {
	session, ok := s.store.Get(id)
	if !ok {
		return nil, gaiatypes.ErrNotFound
	}
	return session, nil
}

// SessionCount reports how many sessions are held.
func (s *ChatService) SessionCount() int {
	return s.store.Len()
}

// SystemPromptInfo describes the node prompt, the override and the prompt now in effect.
func (s *ChatService) SystemPromptInfo(ctx context.Context) gaiatypes.SystemPromptInfo {
	nodePrompt := s.nodePrompt(ctx)
	info := gaiatypes.SystemPromptInfo{
		NodeSystemPrompt:    nodePrompt,
		CurrentSystemPrompt: nodePrompt,
	}
	if p, ok := s.override.Get(); ok {
		info.CustomSystemPrompt = &p
		info.CurrentSystemPrompt = p
	}
	return info
}

// SetSystemPrompt stores the override; blank text clears it.
func (s *ChatService) SetSystemPrompt(text string) gaiatypes.SystemPromptUpdate {
	p, ok := s.override.Set(text)
	if !ok {
		s.log.Info("System prompt override cleared")
		return gaiatypes.SystemPromptUpdate{Success: true, Message: "Custom system prompt cleared, using node default"}
	}
	s.log.Info("System prompt override set", "length", len(p))
	return gaiatypes.SystemPromptUpdate{Success: true, CustomSystemPrompt: &p, Message: "Custom system prompt updated"}
}

// ClearSystemPrompt removes the override.
func (s *ChatService) ClearSystemPrompt() gaiatypes.SystemPromptUpdate {
	s.override.Clear()
	s.log.Info("System prompt override cleared")
	return gaiatypes.SystemPromptUpdate{Success: true, Message: "Custom system prompt cleared, using node default"}
}

// asUpstream keeps typed errors and wraps anything else as an UpstreamError.
func asUpstream(service, op string, err error) error {
	var upstream *gaiatypes.UpstreamError
	var cfg *gaiatypes.ConfigurationError
	if errors.As(err, &upstream) || errors.As(err, &cfg) || errors.Is(err, context.Canceled) {
		return err
	}
	return &gaiatypes.UpstreamError{Service: service, Op: op, Err: err}
}
