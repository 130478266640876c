package state

import (
	"strings"
	"sync"
)

// PromptOverride is the single process-wide system prompt slot. When set it wins
// over request-supplied and node-default prompts for every session.
type PromptOverride struct {
	mu    sync.RWMutex
	value *string
}

// NewPromptOverride creates an empty override.
func NewPromptOverride() *PromptOverride {
	return &PromptOverride{}
}

// Set trims text and stores it. A blank result clears the override.
// It returns the stored value and whether one is now set.
func (p *PromptOverride) Set(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)

	p.mu.Lock()
	defer p.mu.Unlock()

	if trimmed == "" {
		p.value = nil
		return "", false
	}
	p.value = &trimmed
	return trimmed, true
}

// Clear removes the override.
func (p *PromptOverride) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = nil
}

// Get returns the override and whether one is set.
func (p *PromptOverride) Get() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.value == nil {
		return "", false
	}
	return *p.value, true
}

// Effective returns the override if set, otherwise fallback.
func (p *PromptOverride) Effective(fallback string) string {
	if v, ok := p.Get(); ok {
		return v
	}
	return fallback
}
