package server

import (
	"fmt"
	"net/http"

	"gaiachat/internal/services"
	"gaiachat/pkg/gaiatypes"
)

func (s *Server) handleStoreChat(w http.ResponseWriter, r *http.Request) {
	var req gaiatypes.ExportRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	receipt, err := s.transcripts.Export(r.Context(), req)
	if err != nil {
		s.writeError(w, err, "Failed to store chat transcript")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleMyFiles(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("walletAddress")
	page := intFromQuery(r, "page", services.DefaultFilesPage)
	limit := intFromQuery(r, "limit", services.DefaultFilesLimit)

	files, err := s.transcripts.ListFiles(r.Context(), wallet, page, limit)
	if err != nil {
		s.writeError(w, err, "Failed to retrieve files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")

	data, err := s.transcripts.Download(r.Context(), cid)
	if err != nil {
		s.writeError(w, err, "Failed to download file")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chat-transcript-"+cid+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
