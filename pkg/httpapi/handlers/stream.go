package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/provider"
)

const streamChunkSize = 256 << 10

// StreamHandler implements the stateless download/upload endpoints
// described in spec.md §4.11: each request opens its own handle, streams
// through it, and closes it without requiring a prior POST /open.
type StreamHandler struct {
	Namespaces *namespace.Manager
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(namespaces *namespace.Manager) *StreamHandler {
	return &StreamHandler{Namespaces: namespaces}
}

func (h *StreamHandler) router(r *http.Request) (*namespace.Namespace, error) {
	rc := auth.FromContext(r.Context())
	if rc == nil {
		return nil, provider.PermissionDenied("no authenticated tenant")
	}
	return h.Namespaces.GetOrCreate(rc.Tenant), nil
}

// byteRange is a resolved [Start, End] byte range with both ends inclusive.
type byteRange struct {
	Start, End int64 // both inclusive
}

// parseRange interprets an HTTP Range header of the forms "bytes=a-b",
// "bytes=a-", or "bytes=-n" against a known file size, per spec.md
// §4.11. A missing or malformed header yields ok=false.
func parseRange(header string, size int64) (byteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, false
	}
	spec := strings.TrimPrefix(header, prefix)
	spec = strings.Split(spec, ",")[0] // only the first range is honored

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, false
	}

	if parts[0] == "" {
		// "bytes=-n": last n bytes.
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, false
		}
		if n > size {
			n = size
		}
		return byteRange{Start: size - n, End: size - 1}, true
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return byteRange{}, false
	}

	if parts[1] == "" {
		return byteRange{Start: start, End: size - 1}, true
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return byteRange{}, false
	}
	if end > size-1 {
		end = size - 1
	}
	return byteRange{Start: start, End: end}, true
}

// Download handles GET /api/v1/download?path=P, honoring Range.
func (h *StreamHandler) Download(w http.ResponseWriter, r *http.Request) {
	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	path, err := queryPath(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	id, fi, err := ns.Router.Open(r.Context(), path, provider.OpenFlags{Read: true})
	if err != nil {
		writeOperationError(w, err)
		return
	}
	defer ns.Router.Close(r.Context(), id) //nolint:errcheck

	size := int64(fi.Size)
	status := http.StatusOK
	rng := byteRange{Start: 0, End: size - 1}
	if header := r.Header.Get("Range"); header != "" {
		if parsed, ok := parseRange(header, size); ok {
			rng = parsed
			status = http.StatusPartialContent
		}
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")
	length := rng.End - rng.Start + 1
	if length < 0 {
		length = 0
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(rng.Start, 10)+"-"+strconv.FormatInt(rng.End, 10)+"/"+strconv.FormatInt(size, 10))
	}
	w.WriteHeader(status)

	flusher, _ := w.(http.Flusher)
	offset := rng.Start
	remaining := length
	for remaining > 0 {
		n := int64(streamChunkSize)
		if n > remaining {
			n = remaining
		}
		data, err := ns.Router.Read(r.Context(), id, offset, int(n))
		if err != nil {
			logger.ErrorCtx(r.Context(), "download stream failed", logger.Err(err))
			return
		}
		if len(data) == 0 {
			return
		}
		if _, err := w.Write(data); err != nil {
			return // client disconnected
		}
		if flusher != nil {
			flusher.Flush()
		}
		offset += int64(len(data))
		remaining -= int64(len(data))
	}
}

// UploadResponse is the PUT /api/v1/upload response.
type UploadResponse struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

// Upload handles PUT /api/v1/upload?path=P: open-with-create-truncate,
// stream the body through write, close.
func (h *StreamHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	path, err := queryPath(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	id, _, err := ns.Router.Open(r.Context(), path, provider.OpenFlags{Write: true, Create: true, Truncate: true})
	if err != nil {
		writeOperationError(w, err)
		return
	}

	total := 0
	offset := int64(0)
	buf := make([]byte, streamChunkSize)
	var streamErr error
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			written, werr := ns.Router.Write(r.Context(), id, offset, buf[:n])
			if werr != nil {
				streamErr = werr
				break
			}
			offset += int64(written)
			total += written
		}
		if readErr != nil {
			if readErr != io.EOF {
				streamErr = readErr
			}
			break
		}
	}

	if cerr := ns.Router.Close(r.Context(), id); cerr != nil {
		logger.WarnCtx(r.Context(), "close after upload failed", logger.Err(cerr))
	}

	if streamErr != nil {
		writeOperationError(w, streamErr)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Path: path, BytesWritten: total})
}
