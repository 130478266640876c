// Package gaiatypes defines storage backend contracts for gaiachat.
package gaiatypes

import "context"

// UploadFile is a single in-memory file handed to the storage backend.
type UploadFile struct {
	Name     string
	Path     string
	MimeType string
	Data     []byte
}

// UploadOptions controls how a file is stored.
type UploadOptions struct {
	Compression bool
}

// RemoteFile is one entry of a user's stored files. Backend fields are passed
// through verbatim; HeadCID is extracted for URL construction.
type RemoteFile map[string]any

// HeadCID returns the file's content identifier.
func (f RemoteFile) HeadCID() string {
	s, _ := f["headCid"].(string)
	return s
}

// Name returns the stored file name.
func (f RemoteFile) Name() string {
	s, _ := f["name"].(string)
	return s
}

// FileList is one page of a user's stored files.
type FileList struct {
	Rows       []RemoteFile `json:"rows"`
	TotalCount int          `json:"totalCount"`
}

// ObjectStorage is the content-addressed storage backend used for transcripts.
type ObjectStorage interface {
	UploadFile(ctx context.Context, file UploadFile, opts UploadOptions) (string, error)
	PublishObject(ctx context.Context, cid string) (string, error)
	DownloadFile(ctx context.Context, cid string) ([]byte, error)
	GetMyFiles(ctx context.Context, page, limit int) (*FileList, error)
}
