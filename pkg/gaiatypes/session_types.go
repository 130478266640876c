// Package gaiatypes defines session and conversation types shared across gaiachat.
// This file contains the in-memory conversation model kept per chat session.
package gaiatypes

import "time"

// Message roles accepted in a session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single message in a session's conversation history.
// Assistant content is stored already rendered for display.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversation state tracked for one session identifier.
type Session struct {
	Messages      []Message  `json:"messages"`
	TotalTokens   int64      `json:"totalTokens"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUpdated   *time.Time `json:"lastUpdated,omitempty"`
	SystemPrompt  string     `json:"systemPrompt"`
	Model         string     `json:"model"`
	GaiaNodeURL   string     `json:"gaiaNodeUrl"`
	WalletAddress string     `json:"walletAddress,omitempty"`
}

// NewSession creates an empty session stamped with the given creation time.
func NewSession(createdAt time.Time, systemPrompt, model, nodeURL, walletAddress string) *Session {
	return &Session{
		Messages:      []Message{},
		CreatedAt:     createdAt,
		SystemPrompt:  systemPrompt,
		Model:         model,
		GaiaNodeURL:   nodeURL,
		WalletAddress: walletAddress,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		cp.LastUpdated = &t
	}
	return &cp
}

// AppendMessage adds a message to the end of the history.
func (s *Session) AppendMessage(role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: at})
}

// AddTokens adds usage to the cumulative counter. Negative usage is ignored
// so the total never decreases.
func (s *Session) AddTokens(n int64) {
	if n > 0 {
		s.TotalTokens += n
	}
}

// Touch records the last modification time.
func (s *Session) Touch(at time.Time) {
	s.LastUpdated = &at
}
