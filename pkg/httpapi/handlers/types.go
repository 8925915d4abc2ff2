package handlers

import (
	"strconv"
	"time"

	"github.com/fs9fs/fs9/pkg/handle"
	"github.com/fs9fs/fs9/pkg/provider"
)

// FileInfoDTO is the JSON wire shape of provider.FileInfo: mode travels
// as a decimal POSIX mode per spec.md §6.1, timestamps as RFC-3339.
type FileInfoDTO struct {
	Path     string    `json:"path"`
	FileType string    `json:"file_type"`
	Size     uint64    `json:"size"`
	Mode     uint32    `json:"mode"`
	UID      uint32    `json:"uid"`
	GID      uint32    `json:"gid"`
	Atime    time.Time `json:"atime"`
	Mtime    time.Time `json:"mtime"`
	Ctime    time.Time `json:"ctime"`
	Nlink    uint32    `json:"nlink"`
}

func toFileInfoDTO(fi provider.FileInfo) FileInfoDTO {
	return FileInfoDTO{
		Path:     fi.Path,
		FileType: fi.FileType.String(),
		Size:     fi.Size,
		Mode:     uint32(fi.Mode),
		UID:      fi.UID,
		GID:      fi.GID,
		Atime:    fi.Atime,
		Mtime:    fi.Mtime,
		Ctime:    fi.Ctime,
		Nlink:    fi.Nlink,
	}
}

func toFileInfoDTOs(entries []provider.FileInfo) []FileInfoDTO {
	out := make([]FileInfoDTO, len(entries))
	for i, fi := range entries {
		out[i] = toFileInfoDTO(fi)
	}
	return out
}

// StatChangesDTO is the JSON wire shape of a wstat request's "changes"
// object: every field is optional, matching provider.StatChanges.
type StatChangesDTO struct {
	Mode    *uint32    `json:"mode,omitempty"`
	UID     *uint32    `json:"uid,omitempty"`
	GID     *uint32    `json:"gid,omitempty"`
	Size    *uint64    `json:"size,omitempty"`
	Mtime   *time.Time `json:"mtime,omitempty"`
	Atime   *time.Time `json:"atime,omitempty"`
	NewPath *string    `json:"new_path,omitempty"`
}

func (d StatChangesDTO) toStatChanges() provider.StatChanges {
	var mode *uint16
	if d.Mode != nil {
		m := uint16(*d.Mode)
		mode = &m
	}
	return provider.StatChanges{
		Mode:    mode,
		UID:     d.UID,
		GID:     d.GID,
		Size:    d.Size,
		Mtime:   d.Mtime,
		Atime:   d.Atime,
		NewPath: d.NewPath,
	}
}

// WstatRequest is the POST /api/v1/wstat body.
type WstatRequest struct {
	Path    string         `json:"path"`
	Changes StatChangesDTO `json:"changes"`
}

// OpenFlagsDTO is the JSON wire shape of provider.OpenFlags.
type OpenFlagsDTO struct {
	Read      bool `json:"read"`
	Write     bool `json:"write"`
	Append    bool `json:"append"`
	Create    bool `json:"create"`
	Exclusive bool `json:"exclusive"`
	Truncate  bool `json:"truncate"`
	Directory bool `json:"directory"`
}

func (d OpenFlagsDTO) toOpenFlags() provider.OpenFlags {
	return provider.OpenFlags{
		Read:      d.Read,
		Write:     d.Write,
		Append:    d.Append,
		Create:    d.Create,
		Exclusive: d.Exclusive,
		Truncate:  d.Truncate,
		Directory: d.Directory,
	}
}

// OpenRequest is the POST /api/v1/open body.
type OpenRequest struct {
	Path  string       `json:"path"`
	Flags OpenFlagsDTO `json:"flags"`
}

// OpenResponse is the POST /api/v1/open response.
type OpenResponse struct {
	HandleID string      `json:"handle_id"`
	Info     FileInfoDTO `json:"info"`
}

// ReadRequest is the POST /api/v1/read body.
type ReadRequest struct {
	HandleID string `json:"handle_id"`
	Offset   int64  `json:"offset"`
	Size     int    `json:"size"`
}

// CloseRequest is the POST /api/v1/close body.
type CloseRequest struct {
	HandleID string `json:"handle_id"`
}

// WriteResponse is the POST /api/v1/write response.
type WriteResponse struct {
	BytesWritten int `json:"bytes_written"`
}

// MountRequest is the POST /api/v1/mount body.
type MountRequest struct {
	Path     string         `json:"path"`
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

// MountInfoDTO describes one entry in the GET /api/v1/mounts response.
type MountInfoDTO struct {
	Path         string `json:"path"`
	Provider     string `json:"provider"`
	Capabilities uint32 `json:"capabilities"`
}

// PluginLoadRequest is the POST /api/v1/plugin/load body.
type PluginLoadRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// PluginUnloadRequest is the POST /api/v1/plugin/unload body.
type PluginUnloadRequest struct {
	Name string `json:"name"`
}

// RevokeRequest is the POST /api/v1/auth/revoke body.
type RevokeRequest struct {
	Token string `json:"token"`
}

// parseHandleID decodes the decimal string wire form of a handle.ID.
func parseHandleID(s string) (handle.ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, provider.InvalidInput("handle_id must be a decimal integer")
	}
	return handle.ID(v), nil
}

// handleIDString encodes a handle.ID as the decimal string the wire
// protocol transmits it as.
func handleIDString(id handle.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// parseOffset decodes a decimal byte offset from a query parameter.
func parseOffset(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, provider.InvalidInput("offset must be a decimal integer")
	}
	return v, nil
}
