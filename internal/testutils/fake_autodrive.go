package testutils

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
)

// FakeAutoDriveKey is the API key a FakeAutoDrive accepts.
const FakeAutoDriveKey = "test-autodrive-key"

// StoredObject is one completed upload held by a FakeAutoDrive.
type StoredObject struct {
	CID         string
	Name        string
	MimeType    string
	Compression string
	Data        []byte
	Published   bool
}

type pendingUpload struct {
	name        string
	mimeType    string
	compression string
	chunks      map[int][]byte
}

// FakeAutoDrive is an in-memory AutoDrive API served by httptest.
type FakeAutoDrive struct {
	Server *httptest.Server

	mu          sync.Mutex
	uploads     map[string]*pendingUpload
	objects     map[string]*StoredObject
	order       []string
	nextID      int
	failUpload  bool
	failPublish bool
	chunkCalls  int
}

// NewFakeAutoDrive starts a fake AutoDrive that is closed when the test ends.
func NewFakeAutoDrive(t testing.TB) *FakeAutoDrive {
	t.Helper()
	f := &FakeAutoDrive{
		uploads: make(map[string]*pendingUpload),
		objects: make(map[string]*StoredObject),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /uploads/file", f.handleCreate)
	mux.HandleFunc("POST /uploads/file/{id}/chunk", f.handleChunk)
	mux.HandleFunc("POST /uploads/{id}/complete", f.handleComplete)
	mux.HandleFunc("POST /objects/{cid}/publish", f.handlePublish)
	mux.HandleFunc("GET /objects/{cid}/download", f.handleDownload)
	mux.HandleFunc("GET /objects/roots", f.handleRoots)

	f.Server = httptest.NewServer(f.authenticate(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API root.
func (f *FakeAutoDrive) URL() string { return f.Server.URL }

// FailUploads makes upload creation fail.
func (f *FakeAutoDrive) FailUploads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpload = fail
}

// FailPublish makes publishing fail.
func (f *FakeAutoDrive) FailPublish(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPublish = fail
}

// Object returns a stored object by CID.
func (f *FakeAutoDrive) Object(cid string) (StoredObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[cid]
	if !ok {
		return StoredObject{}, false
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return cp, true
}

// Put stores an object directly, bypassing the upload flow.
func (f *FakeAutoDrive) Put(name string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storeLocked(&StoredObject{Name: name, Data: data})
}

// ChunkCalls counts chunk requests.
func (f *FakeAutoDrive) ChunkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunkCalls
}

func (f *FakeAutoDrive) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeAutoDriveKey || r.Header.Get("X-Auth-Provider") != "apikey" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAutoDrive) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename      string `json:"filename"`
		MimeType      string `json:"mimeType"`
		UploadOptions struct {
			Compression *struct {
				Algorithm string `json:"algorithm"`
			} `json:"compression"`
		} `json:"uploadOptions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filename is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "storage quota exceeded"})
		return
	}

	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	up := &pendingUpload{name: body.Filename, mimeType: body.MimeType, chunks: make(map[int][]byte)}
	if body.UploadOptions.Compression != nil {
		up.compression = body.UploadOptions.Compression.Algorithm
	}
	f.uploads[id] = up
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (f *FakeAutoDrive) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index is required"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkCalls++
	up, ok := f.uploads[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}
	up.chunks[index] = data
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAutoDrive) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}
	delete(f.uploads, id)

	indexes := make([]int, 0, len(up.chunks))
	for i := range up.chunks {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var data []byte
	for _, i := range indexes {
		data = append(data, up.chunks[i]...)
	}

	cid := f.storeLocked(&StoredObject{Name: up.name, MimeType: up.mimeType, Compression: up.compression, Data: data})
	writeJSON(w, http.StatusOK, map[string]string{"cid": cid})
}

func (f *FakeAutoDrive) storeLocked(obj *StoredObject) string {
	sum := sha256.Sum256(append([]byte(obj.Name+"\x00"), obj.Data...))
	obj.CID = fmt.Sprintf("bafkr%x", sum[:16])
	if _, exists := f.objects[obj.CID]; !exists {
		f.order = append(f.order, obj.CID)
	}
	f.objects[obj.CID] = obj
	return obj.CID
}

func (f *FakeAutoDrive) handlePublish(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPublish {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "publish disabled"})
		return
	}
	obj, ok := f.objects[cid]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "object not found"})
		return
	}
	obj.Published = true
	writeJSON(w, http.StatusOK, map[string]string{"result": "pub-" + cid})
}

func (f *FakeAutoDrive) handleDownload(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")

	f.mu.Lock()
	obj, ok := f.objects[cid]
	var data []byte
	if ok {
		data = append([]byte(nil), obj.Data...)
	}
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "object not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (f *FakeAutoDrive) handleRoots(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("scope") != "user" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scope must be user"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	f.mu.Lock()
	defer f.mu.Unlock()

	rows := []map[string]any{}
	for i := offset; i < len(f.order) && (limit <= 0 || len(rows) < limit); i++ {
		obj := f.objects[f.order[i]]
		rows = append(rows, map[string]any{
			"headCid":  obj.CID,
			"name":     obj.Name,
			"size":     len(obj.Data),
			"mimeType": obj.MimeType,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "totalCount": len(f.order)})
}
