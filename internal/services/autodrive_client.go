package services

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"gaiachat/internal/logger"
	"gaiachat/internal/version"
	"gaiachat/pkg/gaiatypes"
)

const (
	autoDriveServiceName = "autodrive"

	// DefaultChunkSize is the size of each uploaded chunk.
	DefaultChunkSize = 1024 * 1024

	zlibLevel = 8
)

// AutoDriveConfig holds configuration for the AutoDrive client.
type AutoDriveConfig struct {
	APIKey     string
	APIURL     string
	HTTPClient *http.Client
	ChunkSize  int
}

// AutoDriveClient is a REST client for the AutoDrive storage API.
type AutoDriveClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	chunkSize  int
	log        *log.Logger
}

var _ gaiatypes.ObjectStorage = (*AutoDriveClient)(nil)

// NewAutoDriveClient creates a client for the given API root.
func NewAutoDriveClient(cfg AutoDriveConfig) *AutoDriveClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &AutoDriveClient{
		apiKey:     cfg.APIKey,
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		httpClient: httpClient,
		chunkSize:  chunkSize,
		log:        logger.NewStyledLogger("AutoDrive"),
	}
}

type compressionOptions struct {
	Algorithm string `json:"algorithm"`
	Level     int    `json:"level"`
}

type uploadOptionsPayload struct {
	Compression *compressionOptions `json:"compression,omitempty"`
}

type createUploadRequest struct {
	Filename      string               `json:"filename"`
	MimeType      string               `json:"mimeType,omitempty"`
	UploadOptions uploadOptionsPayload `json:"uploadOptions"`
}

type createUploadResponse struct {
	ID string `json:"id"`
}

type completeUploadResponse struct {
	CID string `json:"cid"`
}

type publishResponse struct {
	Result string `json:"result"`
}

// UploadFile uploads one file and returns its CID. The stored name is the file's
// path when one is given, so objects group under a folder-like prefix.
func (c *AutoDriveClient) UploadFile(ctx context.Context, file gaiatypes.UploadFile, opts gaiatypes.UploadOptions) (string, error) {
	data := file.Data
	payload := createUploadRequest{Filename: file.Name, MimeType: file.MimeType}
	if file.Path != "" {
		payload.Filename = file.Path
	}
	if opts.Compression {
		compressed, err := deflate(data)
		if err != nil {
			return "", fmt.Errorf("failed to compress %s: %w", file.Name, err)
		}
		data = compressed
		payload.UploadOptions.Compression = &compressionOptions{Algorithm: "ZLIB", Level: zlibLevel}
	}

	var created createUploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/uploads/file", "create upload", payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", c.upstream("create upload", 0, errors.New("missing upload id"))
	}

	// An empty file still sends one empty chunk.
	for index, offset := 0, 0; ; index++ {
		end := min(offset+c.chunkSize, len(data))
		if err := c.sendChunk(ctx, created.ID, index, file.Name, data[offset:end]); err != nil {
			return "", err
		}
		offset = end
		if offset >= len(data) {
			break
		}
	}

	var completed completeUploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/uploads/"+url.PathEscape(created.ID)+"/complete", "complete upload", nil, &completed); err != nil {
		return "", err
	}
	if completed.CID == "" {
		return "", c.upstream("complete upload", 0, errors.New("missing cid"))
	}

	c.log.Info("File uploaded", "file", payload.Filename, "bytes", len(data), "cid", completed.CID)
	return completed.CID, nil
}

func (c *AutoDriveClient) sendChunk(ctx context.Context, uploadID string, index int, name string, chunk []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to build chunk: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("failed to build chunk: %w", err)
	}
	if err := w.WriteField("index", strconv.Itoa(index)); err != nil {
		return fmt.Errorf("failed to build chunk: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build chunk: %w", err)
	}

	path := "/uploads/file/" + url.PathEscape(uploadID) + "/chunk"
	_, err = c.do(ctx, http.MethodPost, path, "upload chunk", w.FormDataContentType(), &body)
	return err
}

// PublishObject makes an object public and returns its public URL.
func (c *AutoDriveClient) PublishObject(ctx context.Context, cid string) (string, error) {
	var resp publishResponse
	if err := c.doJSON(ctx, http.MethodPost, "/objects/"+url.PathEscape(cid)+"/publish", "publish object", nil, &resp); err != nil {
		return "", err
	}
	if resp.Result == "" {
		return "", c.upstream("publish object", 0, errors.New("missing public object id"))
	}
	return fmt.Sprintf("%s/objects/%s/public", c.apiURL, resp.Result), nil
}

// DownloadFile fetches an object, inflating it when it was stored zlib-compressed.
func (c *AutoDriveClient) DownloadFile(ctx context.Context, cid string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/objects/"+url.PathEscape(cid)+"/download", "download object", "", nil)
	if err != nil {
		return nil, err
	}
	if !looksZlib(body) {
		return body, nil
	}
	inflated, err := inflate(body)
	if err != nil {
		// Not compressed after all; hand back the raw bytes.
		c.log.Debug("Object is not zlib data", "cid", cid, "error", err)
		return body, nil
	}
	return inflated, nil
}

// GetMyFiles lists the caller's root objects.
func (c *AutoDriveClient) GetMyFiles(ctx context.Context, page, limit int) (*gaiatypes.FileList, error) {
	q := url.Values{}
	q.Set("scope", "user")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(page*limit))

	var list gaiatypes.FileList
	if err := c.doJSON(ctx, http.MethodGet, "/objects/roots?"+q.Encode(), "list files", nil, &list); err != nil {
		return nil, err
	}
	if list.Rows == nil {
		list.Rows = []gaiatypes.RemoteFile{}
	}
	return &list, nil
}

func (c *AutoDriveClient) doJSON(ctx context.Context, method, path, op string, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	raw, err := c.do(ctx, method, path, op, contentType, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.upstream(op, http.StatusOK, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func (c *AutoDriveClient) do(ctx context.Context, method, path, op, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Auth-Provider", "apikey")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logger.ServiceOperation(autoDriveServiceName, op, "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.upstream(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.upstream(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.upstream(op, resp.StatusCode, errors.New(errorMessage(resp, raw)))
	}
	return raw, nil
}

func (c *AutoDriveClient) upstream(op string, status int, err error) error {
	return &gaiatypes.UpstreamError{Service: autoDriveServiceName, Op: op, Status: status, Err: err}
}

// errorMessage extracts a readable message from an error response.
func errorMessage(resp *http.Response, raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 512 {
		return text
	}
	return resp.Status
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlibLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// looksZlib checks the two-byte zlib header (deflate method, valid check bits).
func looksZlib(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0
}

// LazyAutoDrive builds the AutoDrive client on first use, so a missing API key
// only fails the storage endpoints.
type LazyAutoDrive struct {
	cfg AutoDriveConfig

	mu     sync.Mutex
	client *AutoDriveClient
}

var _ gaiatypes.ObjectStorage = (*LazyAutoDrive)(nil)

// NewLazyAutoDrive wraps cfg.
func NewLazyAutoDrive(cfg AutoDriveConfig) *LazyAutoDrive {
	return &LazyAutoDrive{cfg: cfg}
}

func (l *LazyAutoDrive) get() (*AutoDriveClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}
	if strings.TrimSpace(l.cfg.APIKey) == "" {
		return nil, &gaiatypes.ConfigurationError{Variable: "AUTODRIVE_API_KEY"}
	}
	l.client = NewAutoDriveClient(l.cfg)
	return l.client, nil
}

// UploadFile delegates to the underlying client.
func (l *LazyAutoDrive) UploadFile(ctx context.Context, file gaiatypes.UploadFile, opts gaiatypes.UploadOptions) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", err
	}
	return c.UploadFile(ctx, file, opts)
}

// PublishObject delegates to the underlying client.
func (l *LazyAutoDrive) PublishObject(ctx context.Context, cid string) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", err
	}
	return c.PublishObject(ctx, cid)
}

// DownloadFile delegates to the underlying client.
func (l *LazyAutoDrive) DownloadFile(ctx context.Context, cid string) ([]byte, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.DownloadFile(ctx, cid)
}

// GetMyFiles delegates to the underlying client.
func (l *LazyAutoDrive) GetMyFiles(ctx context.Context, page, limit int) (*gaiatypes.FileList, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.GetMyFiles(ctx, page, limit)
}
