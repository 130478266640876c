// Package gaiatypes defines the JSON payloads of the gaiachat HTTP API.
// Server handlers and the terminal client share these definitions.
package gaiatypes

// SendMessageRequest is the body of POST /api/chat/message.
type SendMessageRequest struct {
	Message       string `json:"message"`
	SessionID     string `json:"sessionId"`
	SystemPrompt  string `json:"systemPrompt,omitempty"`
	Model         string `json:"model,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// SendMessageResult is the reply to a chat message.
type SendMessageResult struct {
	Response    string `json:"response"`
	SessionID   string `json:"sessionId"`
	TotalTokens int64  `json:"totalTokens"`
	TokensUsed  int64  `json:"tokensUsed"`
	Model       string `json:"model"`
}

// SystemPromptInfo reports the prompt sources. CustomSystemPrompt is null when no override is set.
type SystemPromptInfo struct {
	NodeSystemPrompt    string  `json:"nodeSystemPrompt"`
	CustomSystemPrompt  *string `json:"customSystemPrompt"`
	CurrentSystemPrompt string  `json:"currentSystemPrompt"`
}

// SystemPromptUpdate is the reply to setting or clearing the override.
type SystemPromptUpdate struct {
	Success            bool    `json:"success"`
	CustomSystemPrompt *string `json:"customSystemPrompt"`
	Message            string  `json:"message"`
}

// ExportRequest is the body of POST /api/storage/store-chat.
type ExportRequest struct {
	SessionID     string    `json:"sessionId"`
	WalletAddress string    `json:"walletAddress"`
	NetworkID     NetworkID `json:"networkId"`
}

// FilesPage is the reply of GET /api/storage/my-files. Page and Limit address
// the storage backend; TotalCount is the number of the wallet's files in Files.
type FilesPage struct {
	Files         []RemoteFile `json:"files"`
	TotalCount    int          `json:"totalCount"`
	Page          int          `json:"page"`
	Limit         int          `json:"limit"`
	WalletAddress string       `json:"walletAddress"`
}

// ClientConfig is the public configuration handed to UI clients.
type ClientConfig struct {
	GaiaNodeURL    string `json:"gaiaNodeUrl"`
	ReownProjectID string `json:"reownProjectId"`
}

// Health is the reply of GET /health.
type Health struct {
	OK       bool   `json:"ok"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
}
