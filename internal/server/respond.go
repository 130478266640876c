package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gaiachat/internal/logger"
	"gaiachat/pkg/gaiatypes"
)

const maxBodyBytes = 1_000_000

var errBodyTooLarge = errors.New("request body too large")

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r == nil || r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer func() { _ = r.Body.Close() }()

	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w (limit %d bytes)", errBodyTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("failed reading request body: %v", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		b = []byte("{}")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	return nil
}

// writeBodyError reports a readJSON failure.
func writeBodyError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, gaiatypes.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"failed to marshal json"}`))
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

func intFromQuery(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// writeError maps the error taxonomy onto status codes. failure is the
// top-level message used for 500 responses.
func (s *Server) writeError(w http.ResponseWriter, err error, failure string) {
	var (
		validation *gaiatypes.ValidationError
		upstream   *gaiatypes.UpstreamError
		config     *gaiatypes.ConfigurationError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, gaiatypes.ErrorResponse{Error: validation.Message})
	case errors.Is(err, gaiatypes.ErrInvalidNetwork):
		writeJSON(w, http.StatusBadRequest, gaiatypes.ErrorResponse{Error: s.invalidNetworkMessage()})
	case errors.Is(err, gaiatypes.ErrEmptyConversation):
		writeJSON(w, http.StatusBadRequest, gaiatypes.ErrorResponse{Error: "No conversation found to store"})
	case errors.Is(err, gaiatypes.ErrNotFound):
		writeJSON(w, http.StatusNotFound, gaiatypes.ErrorResponse{Error: "Chat session not found"})
	case errors.As(err, &config):
		writeJSON(w, http.StatusInternalServerError, gaiatypes.ErrorResponse{Error: failure, Details: config.Error()})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusInternalServerError, gaiatypes.ErrorResponse{
			Error:   failure,
			Details: upstream.Details(),
			Status:  upstream.Status,
			Code:    upstream.Code,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, gaiatypes.ErrorResponse{Error: failure, Details: err.Error()})
	}
}

func (s *Server) invalidNetworkMessage() string {
	return fmt.Sprintf("Invalid network. Please connect to %s (Chain ID: %d).", s.opts.Chain.Name, s.opts.Chain.ChainID)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.HTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
