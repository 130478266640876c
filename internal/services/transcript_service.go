package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gaiachat/internal/logger"
	"gaiachat/internal/network"
	"gaiachat/internal/state"
	"gaiachat/pkg/gaiatypes"
)

// Defaults for listing stored files.
const (
	DefaultFilesPage  = 0
	DefaultFilesLimit = 10
)

// TranscriptServiceOptions configures a TranscriptService.
type TranscriptServiceOptions struct {
	Chain       network.Chain
	GatewayURL  string
	GaiaNodeURL string
	Now         func() time.Time
}

// TranscriptService exports sessions to AutoDrive and reads them back.
type TranscriptService struct {
	store      *state.SessionStore
	storage    gaiatypes.ObjectStorage
	chain      network.Chain
	gatewayURL string
	nodeURL    string
	now        func() time.Time
	log        *log.Logger
}

// NewTranscriptService wires a TranscriptService.
func NewTranscriptService(store *state.SessionStore, storage gaiatypes.ObjectStorage, opts TranscriptServiceOptions) *TranscriptService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TranscriptService{
		store:      store,
		storage:    storage,
		chain:      opts.Chain,
		gatewayURL: strings.TrimSuffix(opts.GatewayURL, "/"),
		nodeURL:    opts.GaiaNodeURL,
		now:        now,
		log:        logger.NewStyledLogger("Transcript"),
	}
}

// Name returns the service name "transcript" for registration.
func (s *TranscriptService) Name() string {
	return "transcript"
}

// Initialize checks that the service is fully wired.
func (s *TranscriptService) Initialize(_ context.Context) error {
	if s.store == nil || s.storage == nil {
		return errors.New("transcript service is missing a dependency")
	}
	if s.chain.ChainID == 0 {
		return errors.New("transcript service has no supported chain")
	}
	return nil
}

// GatewayURL returns the public gateway address of a CID.
func (s *TranscriptService) GatewayURL(cid string) string {
	return fmt.Sprintf("%s/file/%s", s.gatewayURL, cid)
}

// TranscriptFileName names the stored object for a session.
func TranscriptFileName(sessionID string) string {
	return fmt.Sprintf("chat-transcript-%s.json", sessionID)
}

// Export uploads a snapshot of one session and returns the storage receipt.
func (s *TranscriptService) Export(ctx context.Context, req gaiatypes.ExportRequest) (*gaiatypes.StorageReceipt, error) {
	if req.SessionID == "" {
		return nil, gaiatypes.NewValidationError("sessionId", "Session ID is required")
	}
	if req.WalletAddress == "" {
		return nil, gaiatypes.NewValidationError("walletAddress", "Wallet address is required")
	}
	if !req.NetworkID.IsZero() && !s.chain.Accepts(req.NetworkID) {
		return nil, fmt.Errorf("network %s: %w", req.NetworkID, gaiatypes.ErrInvalidNetwork)
	}

	session, ok := s.store.Get(req.SessionID)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, gaiatypes.ErrNotFound)
	}
	if len(session.Messages) == 0 {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, gaiatypes.ErrEmptyConversation)
	}

	doc := s.buildTranscript(req, session)
	data, err := s.encodeWithStorage(&doc)
	if err != nil {
		return nil, err
	}

	fileName := TranscriptFileName(req.SessionID)
	cid, err := s.storage.UploadFile(ctx, gaiatypes.UploadFile{
		Name:     fileName,
		Path:     req.WalletAddress + "/" + fileName,
		MimeType: "application/json",
		Data:     data,
	}, gaiatypes.UploadOptions{Compression: true})
	if err != nil {
		s.log.Error("Upload failed", "session", req.SessionID, "wallet", req.WalletAddress, "error", err)
		return nil, asUpstream(autoDriveServiceName, "upload transcript", err)
	}

	receipt := &gaiatypes.StorageReceipt{
		Success:           true,
		CID:               cid,
		GatewayURL:        s.GatewayURL(cid),
		FileName:          fileName,
		Size:              len(data),
		SizeKB:            network.Round(float64(len(data))/1024, 2),
		EstimatedCostTAI3: doc.Storage.EstimatedCostTAI3,
		StoredAt:          doc.StoredAt,
		Storage:           *doc.Storage,
		Note:              "File uploaded successfully. Use gatewayUrl for immediate access.",
	}

	publicURL, err := s.storage.PublishObject(ctx, cid)
	if err != nil {
		s.log.Warn("Publish failed, continuing with gateway URL", "cid", cid, "error", err)
		receipt.Note = "File uploaded successfully. Public URL creation failed, use gatewayUrl."
	} else {
		receipt.PublicURL = &publicURL
	}

	s.log.Info("Transcript stored", "session", req.SessionID, "wallet", req.WalletAddress, "cid", cid, "bytes", len(data))
	return receipt, nil
}

func (s *TranscriptService) buildTranscript(req gaiatypes.ExportRequest, session *gaiatypes.Session) gaiatypes.Transcript {
	model := session.Model
	if model == "" {
		model = gaiatypes.DefaultModelID
	}
	nodeURL := s.nodeURL
	if nodeURL == "" {
		nodeURL = session.GaiaNodeURL
	}
	return gaiatypes.Transcript{
		SessionID:     req.SessionID,
		WalletAddress: req.WalletAddress,
		NetworkID:     req.NetworkID,
		SystemPrompt:  session.SystemPrompt,
		Messages:      session.Messages,
		TotalTokens:   session.TotalTokens,
		CreatedAt:     session.CreatedAt,
		StoredAt:      s.now().UTC(),
		Model:         model,
		GaiaNodeURL:   nodeURL,
		Network:       s.chain.Name,
	}
}

// encodeWithStorage serialises the document once to measure it, attaches the
// size and cost block, then serialises the final document.
func (s *TranscriptService) encodeWithStorage(doc *gaiatypes.Transcript) ([]byte, error) {
	initial, err := marshalIndent(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	size := len(initial)
	doc.Storage = &gaiatypes.StorageInfo{
		FileSizeBytes:     size,
		FileSizeKB:        network.Round(float64(size)/1024, 2),
		EstimatedCostTAI3: s.chain.EstimateCost(size),
		CostCalculation: gaiatypes.CostCalculation{
			Method:    "estimated",
			RatePerKB: s.chain.Storage.RatePerKB,
			Note:      s.chain.Storage.Note,
		},
	}

	data, err := marshalIndent(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// marshalIndent encodes with two-space indentation and without HTML escaping,
// since message content is already HTML.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ListFiles returns the wallet's transcripts among one backend page. Other
// wallets' rows are dropped, and TotalCount counts only what is returned.
func (s *TranscriptService) ListFiles(ctx context.Context, wallet string, page, limit int) (*gaiatypes.FilesPage, error) {
	if wallet == "" {
		return nil, gaiatypes.NewValidationError("walletAddress", "Wallet address is required")
	}
	if page < 0 {
		page = DefaultFilesPage
	}
	if limit <= 0 {
		limit = DefaultFilesLimit
	}

	list, err := s.storage.GetMyFiles(ctx, page, limit)
	if err != nil {
		return nil, asUpstream(autoDriveServiceName, "list files", err)
	}

	prefix := strings.ToLower(wallet) + "/"
	files := make([]gaiatypes.RemoteFile, 0, len(list.Rows))
	for _, row := range list.Rows {
		if !strings.HasPrefix(strings.ToLower(row.Name()), prefix) {
			continue
		}
		file := make(gaiatypes.RemoteFile, len(row)+1)
		for k, v := range row {
			file[k] = v
		}
		file["gatewayUrl"] = s.GatewayURL(row.HeadCID())
		files = append(files, file)
	}

	return &gaiatypes.FilesPage{
		Files:         files,
		TotalCount:    len(files),
		Page:          page,
		Limit:         limit,
		WalletAddress: wallet,
	}, nil
}

// Download returns the stored bytes of a transcript.
func (s *TranscriptService) Download(ctx context.Context, cid string) ([]byte, error) {
	if cid == "" {
		return nil, gaiatypes.NewValidationError("cid", "CID is required")
	}
	data, err := s.storage.DownloadFile(ctx, cid)
	if err != nil {
		return nil, asUpstream(autoDriveServiceName, "download file", err)
	}
	return data, nil
}
