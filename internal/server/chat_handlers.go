package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"gaiachat/pkg/gaiatypes"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.chat.ListModels(r.Context())
	if err != nil {
		s.writeError(w, err, "Failed to fetch available models")
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleSystemPromptGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.SystemPromptInfo(r.Context()))
}

func (s *Server) handleSystemPromptSet(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := readJSON(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}

	// null would decode into "" and silently clear the override.
	var prompt string
	raw, ok := body["systemPrompt"]
	if !ok || len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &prompt) != nil {
		writeJSON(w, http.StatusBadRequest, gaiatypes.ErrorResponse{Error: "System prompt must be a string"})
		return
	}

	writeJSON(w, http.StatusOK, s.chat.SetSystemPrompt(prompt))
}

func (s *Server) handleSystemPromptReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.ClearSystemPrompt())
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req gaiatypes.SendMessageRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := s.chat.SendMessage(r.Context(), req)
	if err != nil {
		s.writeError(w, err, "Failed to process chat message")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.chat.GetSession(r.PathValue("sessionId"))
	if errors.Is(err, gaiatypes.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, gaiatypes.ErrorResponse{Error: "Session not found"})
		return
	}
	if err != nil {
		s.writeError(w, err, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleNodeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.chat.NodeConfig(r.Context(), true)
	if err != nil {
		s.log.Error("Failed to fetch node config", "error", err)
		s.writeError(w, err, "Failed to fetch node configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
