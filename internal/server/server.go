// Package server is the HTTP transport for gaiachat: chat, system prompt and
// transcript storage endpoints over JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/cors"

	"gaiachat/internal/logger"
	"gaiachat/internal/network"
	"gaiachat/internal/services"
	"gaiachat/internal/version"
	"gaiachat/pkg/gaiatypes"
)

// Options carries the values handlers report back to clients.
type Options struct {
	GaiaNodeURL    string
	ReownProjectID string
	Chain          network.Chain
}

// Server is the HTTP transport adapter for the chat and storage services.
type Server struct {
	chat        *services.ChatService
	transcripts *services.TranscriptService
	opts        Options
	log         *log.Logger
}

// New creates a Server.
func New(chat *services.ChatService, transcripts *services.TranscriptService, opts Options) *Server {
	return &Server{
		chat:        chat,
		transcripts: transcripts,
		opts:        opts,
		log:         logger.NewStyledLogger("HTTP"),
	}
}

// Handler returns the routed handler with request logging and permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/config", s.handleConfig)

	// Chat
	mux.HandleFunc("GET /api/chat/models", s.handleModels)
	mux.HandleFunc("GET /api/chat/system-prompt", s.handleSystemPromptGet)
	mux.HandleFunc("POST /api/chat/system-prompt", s.handleSystemPromptSet)
	mux.HandleFunc("DELETE /api/chat/system-prompt", s.handleSystemPromptReset)
	mux.HandleFunc("POST /api/chat/message", s.handleMessage)
	mux.HandleFunc("GET /api/chat/session/{sessionId}", s.handleSession)
	mux.HandleFunc("GET /api/chat/node-config", s.handleNodeConfig)

	// Storage
	mux.HandleFunc("POST /api/storage/store-chat", s.handleStoreChat)
	mux.HandleFunc("GET /api/storage/my-files", s.handleMyFiles)
	mux.HandleFunc("GET /api/storage/download/{cid}", s.handleDownload)

	return cors.AllowAll().Handler(logRequests(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", "addr", addr, "version", version.GetVersion())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gaiatypes.Health{
		OK:       true,
		Version:  version.GetVersion(),
		Sessions: s.chat.SessionCount(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gaiatypes.ClientConfig{
		GaiaNodeURL:    s.opts.GaiaNodeURL,
		ReownProjectID: s.opts.ReownProjectID,
	})
}
