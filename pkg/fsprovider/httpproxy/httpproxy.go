// Package httpproxy implements an FsProvider that forwards every operation
// to another FS9 instance's HTTP API (spec.md §6.1), the way the teacher's
// pkg/blocks/store/s3 wraps a remote object store behind the same Store
// contract its local backends satisfy. Every outbound call consumes one
// hop from the request's router.ConsumeHop budget, so a chain of proxies
// pointing at each other eventually fails with TooManyHops instead of
// looping forever.
package httpproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fs9fs/fs9/pkg/provider"
	"github.com/fs9fs/fs9/pkg/router"
)

const capabilities = provider.CapRead | provider.CapWrite | provider.CapCreate |
	provider.CapDelete | provider.CapDirectory | provider.CapTruncate |
	provider.CapRename | provider.CapStatfs

// Config configures a connection to a remote FS9 instance.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// FS is an FsProvider backed entirely by HTTP calls to a remote FS9
// instance's /api/v1 surface.
type FS struct {
	baseURL string
	token   string
	client  *http.Client

	mu      sync.Mutex
	handles map[provider.Handle]string
	nextID  atomic.Uint64
}

// New constructs a proxy provider pointed at cfg.BaseURL.
func New(cfg Config) *FS {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FS{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		handles: make(map[provider.Handle]string),
	}
}

type wireFileInfo struct {
	Path     string `json:"path"`
	FileType string `json:"file_type"`
	Size     uint64 `json:"size"`
	Mode     uint32 `json:"mode"`
	UID      uint32 `json:"uid"`
	GID      uint32 `json:"gid"`
	Atime    string `json:"atime"`
	Mtime    string `json:"mtime"`
	Ctime    string `json:"ctime"`
	Nlink    uint32 `json:"nlink"`
}

func fileTypeString(t provider.FileType) string {
	switch t {
	case provider.TypeDirectory:
		return "directory"
	case provider.TypeSymlink:
		return "symlink"
	default:
		return "regular"
	}
}

func parseFileType(s string) provider.FileType {
	switch s {
	case "directory":
		return provider.TypeDirectory
	case "symlink":
		return provider.TypeSymlink
	default:
		return provider.TypeRegular
	}
}

func fromWire(w wireFileInfo) provider.FileInfo {
	fi := provider.FileInfo{
		Path: w.Path, FileType: parseFileType(w.FileType), Size: w.Size,
		Mode: uint16(w.Mode), UID: w.UID, GID: w.GID, Nlink: w.Nlink,
	}
	if t, err := time.Parse(time.RFC3339, w.Atime); err == nil {
		fi.Atime = t
	}
	if t, err := time.Parse(time.RFC3339, w.Mtime); err == nil {
		fi.Mtime = t
	}
	if t, err := time.Parse(time.RFC3339, w.Ctime); err == nil {
		fi.Ctime = t
	}
	return fi
}

// apiError mirrors the JSON error envelope the remote instance's HTTP
// layer emits on a non-2xx response.
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func kindFromWire(k string) provider.Kind {
	switch k {
	case "NotFound":
		return provider.KindNotFound
	case "AlreadyExists":
		return provider.KindAlreadyExists
	case "PermissionDenied":
		return provider.KindPermissionDenied
	case "IsDirectory":
		return provider.KindIsDirectory
	case "NotDirectory":
		return provider.KindNotDirectory
	case "DirectoryNotEmpty":
		return provider.KindDirectoryNotEmpty
	case "InvalidHandle":
		return provider.KindInvalidHandle
	case "NotImplemented":
		return provider.KindNotImplemented
	case "InvalidInput":
		return provider.KindInvalidInput
	case "TooManyHops":
		return provider.KindTooManyHops
	default:
		return provider.KindInternal
	}
}

func (fs *FS) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	if err := router.ConsumeHop(ctx); err != nil {
		return nil, err
	}

	u := fs.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, provider.Internal(err.Error())
	}
	if fs.token != "" {
		req.Header.Set("Authorization", "Bearer "+fs.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := fs.client.Do(req)
	if err != nil {
		return nil, provider.Internal(fmt.Sprintf("remote request failed: %v", err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Kind == "" {
		return nil, provider.Internal(fmt.Sprintf("remote returned status %d", resp.StatusCode))
	}
	return nil, &provider.Error{Kind: kindFromWire(apiErr.Kind), Message: apiErr.Message}
}

func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Internal("malformed remote response: " + err.Error())
	}
	return nil
}

// Stat proxies to GET /api/v1/stat?path=.
func (fs *FS) Stat(ctx context.Context, reqPath string) (provider.FileInfo, error) {
	resp, err := fs.do(ctx, http.MethodGet, "/api/v1/stat", url.Values{"path": {reqPath}}, nil, "")
	if err != nil {
		return provider.FileInfo{}, err
	}
	var w wireFileInfo
	if err := decodeJSON(resp, &w); err != nil {
		return provider.FileInfo{}, err
	}
	return fromWire(w), nil
}

type wireStatChanges struct {
	Mode    *uint32 `json:"mode,omitempty"`
	UID     *uint32 `json:"uid,omitempty"`
	GID     *uint32 `json:"gid,omitempty"`
	Size    *uint64 `json:"size,omitempty"`
	Mtime   *string `json:"mtime,omitempty"`
	Atime   *string `json:"atime,omitempty"`
	NewPath *string `json:"new_path,omitempty"`
}

func toWireChanges(c provider.StatChanges) wireStatChanges {
	var w wireStatChanges
	if c.Mode != nil {
		m := uint32(*c.Mode)
		w.Mode = &m
	}
	w.UID, w.GID, w.Size, w.NewPath = c.UID, c.GID, c.Size, c.NewPath
	if c.Mtime != nil {
		s := c.Mtime.Format(time.RFC3339)
		w.Mtime = &s
	}
	if c.Atime != nil {
		s := c.Atime.Format(time.RFC3339)
		w.Atime = &s
	}
	return w
}

// Wstat proxies to POST /api/v1/wstat.
func (fs *FS) Wstat(ctx context.Context, reqPath string, changes provider.StatChanges) error {
	payload, _ := json.Marshal(map[string]any{"path": reqPath, "changes": toWireChanges(changes)})
	resp, err := fs.do(ctx, http.MethodPost, "/api/v1/wstat", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Statfs proxies to GET /api/v1/statfs?path=.
func (fs *FS) Statfs(ctx context.Context, reqPath string) (provider.FsStats, error) {
	resp, err := fs.do(ctx, http.MethodGet, "/api/v1/statfs", url.Values{"path": {reqPath}}, nil, "")
	if err != nil {
		return provider.FsStats{}, err
	}
	var stats provider.FsStats
	if err := decodeJSON(resp, &stats); err != nil {
		return provider.FsStats{}, err
	}
	return stats, nil
}

type wireOpenFlags struct {
	Read      bool `json:"read"`
	Write     bool `json:"write"`
	Append    bool `json:"append"`
	Create    bool `json:"create"`
	Exclusive bool `json:"exclusive"`
	Truncate  bool `json:"truncate"`
	Directory bool `json:"directory"`
}

type openResponse struct {
	HandleID string       `json:"handle_id"`
	Info     wireFileInfo `json:"info"`
}

// Open proxies to POST /api/v1/open, minting a local handle that maps to
// the remote instance's handle_id.
func (fs *FS) Open(ctx context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	wf := wireOpenFlags{
		Read: flags.Read, Write: flags.Write, Append: flags.Append,
		Create: flags.Create, Exclusive: flags.Exclusive, Truncate: flags.Truncate, Directory: flags.Directory,
	}
	payload, _ := json.Marshal(map[string]any{"path": reqPath, "flags": wf})
	resp, err := fs.do(ctx, http.MethodPost, "/api/v1/open", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return 0, provider.FileInfo{}, err
	}
	var out openResponse
	if err := decodeJSON(resp, &out); err != nil {
		return 0, provider.FileInfo{}, err
	}

	fs.mu.Lock()
	h := provider.Handle(fs.nextID.Add(1))
	fs.handles[h] = out.HandleID
	fs.mu.Unlock()

	return h, fromWire(out.Info), nil
}

func (fs *FS) remoteHandle(h provider.Handle) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, ok := fs.handles[h]
	if !ok {
		return "", provider.InvalidHandle("no such handle")
	}
	return id, nil
}

// Read proxies to POST /api/v1/read.
func (fs *FS) Read(ctx context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	remoteID, err := fs.remoteHandle(h)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"handle_id": remoteID, "offset": offset, "size": size})
	resp, err := fs.do(ctx, http.MethodPost, "/api/v1/read", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Internal(err.Error())
	}
	return data, nil
}

type writeResponse struct {
	BytesWritten int `json:"bytes_written"`
}

// Write proxies to POST /api/v1/write?handle_id=&offset=.
func (fs *FS) Write(ctx context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	remoteID, err := fs.remoteHandle(h)
	if err != nil {
		return 0, err
	}
	query := url.Values{"handle_id": {remoteID}, "offset": {strconv.FormatInt(offset, 10)}}
	resp, err := fs.do(ctx, http.MethodPost, "/api/v1/write", query, bytes.NewReader(data), "application/octet-stream")
	if err != nil {
		return 0, err
	}
	var out writeResponse
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}
	return out.BytesWritten, nil
}

// Close proxies to POST /api/v1/close and forgets the local handle mapping
// regardless of the remote outcome.
func (fs *FS) Close(ctx context.Context, h provider.Handle) error {
	remoteID, err := fs.remoteHandle(h)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	delete(fs.handles, h)
	fs.mu.Unlock()

	payload, _ := json.Marshal(map[string]any{"handle_id": remoteID})
	resp, err := fs.do(ctx, http.MethodPost, "/api/v1/close", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Readdir proxies to GET /api/v1/readdir?path=.
func (fs *FS) Readdir(ctx context.Context, reqPath string) ([]provider.FileInfo, error) {
	resp, err := fs.do(ctx, http.MethodGet, "/api/v1/readdir", url.Values{"path": {reqPath}}, nil, "")
	if err != nil {
		return nil, err
	}
	var wireEntries []wireFileInfo
	if err := decodeJSON(resp, &wireEntries); err != nil {
		return nil, err
	}
	out := make([]provider.FileInfo, len(wireEntries))
	for i, w := range wireEntries {
		out[i] = fromWire(w)
	}
	return out, nil
}

// Remove proxies to DELETE /api/v1/remove?path=.
func (fs *FS) Remove(ctx context.Context, reqPath string) error {
	resp, err := fs.do(ctx, http.MethodDelete, "/api/v1/remove", url.Values{"path": {reqPath}}, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Capabilities reports the fixed capability set this proxy declares; the
// remote instance's own GET /api/v1/capabilities is not consulted here
// since mount-time configuration is expected to match the remote's
// actual backend.
func (fs *FS) Capabilities() provider.Capabilities {
	return provider.Capabilities(capabilities)
}

var _ provider.FsProvider = (*FS)(nil)
