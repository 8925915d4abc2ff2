package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/httpapi/middleware"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/provider"
)

// FSHandler implements the nine VFS operations over HTTP, each resolving
// its caller's tenant from the RequestContext the auth middleware
// attached and dispatching through that tenant's Router.
type FSHandler struct {
	Namespaces *namespace.Manager
}

// NewFSHandler constructs an FSHandler.
func NewFSHandler(namespaces *namespace.Manager) *FSHandler {
	return &FSHandler{Namespaces: namespaces}
}

func (h *FSHandler) router(r *http.Request) (*namespace.Namespace, error) {
	rc := auth.FromContext(r.Context())
	if rc == nil {
		return nil, provider.PermissionDenied("no authenticated tenant")
	}
	return h.Namespaces.GetOrCreate(rc.Tenant), nil
}

func queryPath(r *http.Request) (string, error) {
	p := r.URL.Query().Get("path")
	if p == "" {
		return "", provider.InvalidInput("query parameter \"path\" is required")
	}
	return p, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return provider.InvalidInput("malformed request body: " + err.Error())
	}
	return nil
}

// Stat handles GET /api/v1/stat?path=P.
func (h *FSHandler) Stat(w http.ResponseWriter, r *http.Request) {
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

	fi, err := ns.Router.Stat(r.Context(), path)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileInfoDTO(fi))
}

// Wstat handles POST /api/v1/wstat.
func (h *FSHandler) Wstat(w http.ResponseWriter, r *http.Request) {
	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	var req WstatRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}

	if err := ns.Router.Wstat(r.Context(), req.Path, req.Changes.toStatChanges()); err != nil {
		writeOperationError(w, err)
		return
	}
	writeEmpty(w, http.StatusOK)
}

// Statfs handles GET /api/v1/statfs?path=P.
func (h *FSHandler) Statfs(w http.ResponseWriter, r *http.Request) {
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

	stats, err := ns.Router.Statfs(r.Context(), path)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Open handles POST /api/v1/open.
func (h *FSHandler) Open(w http.ResponseWriter, r *http.Request) {
	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	var req OpenRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}

	id, fi, err := ns.Router.Open(r.Context(), req.Path, req.Flags.toOpenFlags())
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenResponse{HandleID: handleIDString(id), Info: toFileInfoDTO(fi)})
}

// Read handles POST /api/v1/read. Responses at or under 1 MiB are sent
// as a single body; larger ones are streamed in 256 KiB chunks via
// chunked transfer encoding, per spec.md §4.11.
func (h *FSHandler) Read(w http.ResponseWriter, r *http.Request) {
	const smallReadCeiling = 1 << 20
	const chunkSize = 256 << 10

	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	var req ReadRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	id, err := parseHandleID(req.HandleID)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	if req.Size <= smallReadCeiling {
		data, err := ns.Router.Read(r.Context(), id, req.Offset, req.Size)
		if err != nil {
			writeOperationError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(data) //nolint:errcheck
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	remaining := req.Size
	offset := req.Offset
	for remaining > 0 {
		n := chunkSize
		if n > remaining {
			n = remaining
		}
		data, err := ns.Router.Read(r.Context(), id, offset, n)
		if err != nil {
			logger.ErrorCtx(r.Context(), "streamed read failed mid-transfer", logger.Err(err))
			return
		}
		if len(data) == 0 {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		offset += int64(len(data))
		remaining -= len(data)
	}
}

// Write handles POST /api/v1/write?handle_id=H&offset=N. The body is
// consumed as a lazy sequence of chunks, never buffered whole, per
// spec.md §4.11.
func (h *FSHandler) Write(w http.ResponseWriter, r *http.Request) {
	const chunkSize = 256 << 10

	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	idStr := r.URL.Query().Get("handle_id")
	id, err := parseHandleID(idStr)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	offset := int64(0)
	if q := r.URL.Query().Get("offset"); q != "" {
		parsed, perr := parseOffset(q)
		if perr != nil {
			writeOperationError(w, perr)
			return
		}
		offset = parsed
	}

	total := 0
	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			written, err := ns.Router.Write(r.Context(), id, offset, buf[:n])
			if err != nil {
				writeOperationError(w, err)
				return
			}
			offset += int64(written)
			total += written
		}
		if readErr != nil {
			if readErr != io.EOF {
				if middleware.IsBodyTooLarge(readErr) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds the write size limit")
					return
				}
				writeError(w, http.StatusBadRequest, "error reading request body: "+readErr.Error())
				return
			}
			break
		}
	}

	writeJSON(w, http.StatusOK, WriteResponse{BytesWritten: total})
}

// Close handles POST /api/v1/close.
func (h *FSHandler) Close(w http.ResponseWriter, r *http.Request) {
	ns, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	var req CloseRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	id, err := parseHandleID(req.HandleID)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	if err := ns.Router.Close(r.Context(), id); err != nil {
		writeOperationError(w, err)
		return
	}
	writeEmpty(w, http.StatusOK)
}

// Readdir handles GET /api/v1/readdir?path=P.
func (h *FSHandler) Readdir(w http.ResponseWriter, r *http.Request) {
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

	entries, err := ns.Router.Readdir(r.Context(), path)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileInfoDTOs(entries))
}

// Remove handles DELETE /api/v1/remove?path=P.
func (h *FSHandler) Remove(w http.ResponseWriter, r *http.Request) {
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

	if err := ns.Router.Remove(r.Context(), path); err != nil {
		writeOperationError(w, err)
		return
	}
	writeEmpty(w, http.StatusOK)
}

// Capabilities handles GET /api/v1/capabilities?path=P.
func (h *FSHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
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

	caps, err := ns.Router.Capabilities(path)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uint32(caps))
}
