// Package provider defines the nine-operation storage backend contract
// that every FS9 filesystem, built-in or dynamically loaded, must satisfy.
package provider

import (
	"context"
	"time"
)

// FileType identifies the kind of node a FileInfo describes.
type FileType int

const (
	TypeRegular FileType = iota
	TypeDirectory
	TypeSymlink
)

func (t FileType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "regular"
	}
}

// FileInfo describes a file or directory. Path is always the VFS-absolute
// path after router rewriting; providers only ever see paths rooted at
// their own mount point.
type FileInfo struct {
	Path     string
	FileType FileType
	Size     uint64
	Mode     uint16
	UID      uint32
	GID      uint32
	Atime    time.Time
	Mtime    time.Time
	Ctime    time.Time
	Nlink    uint32
}

// StatChanges is a Plan 9 "wstat" record: any subset of fields may be set,
// absent fields leave the corresponding attribute unchanged.
type StatChanges struct {
	Mode    *uint16
	UID     *uint32
	GID     *uint32
	Size    *uint64 // truncation target
	Mtime   *time.Time
	Atime   *time.Time
	NewPath *string // rename target; requires Capability Rename
}

// OpenFlags controls the semantics of Open.
type OpenFlags struct {
	Read      bool
	Write     bool
	Append    bool
	Create    bool
	Exclusive bool
	Truncate  bool
	Directory bool
}

// Handle is an opaque, provider-local file handle. It is meaningful only
// to the provider that issued it and must never be exposed to clients
// directly; the handle registry mints the client-visible HandleId.
type Handle uint64

// FsStats is the result of Statfs.
type FsStats struct {
	TotalBytes uint64
	FreeBytes  uint64
	TotalFiles uint64
	FreeFiles  uint64
}

// Capability is a single declared ability of a provider.
type Capability uint32

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapCreate
	CapDelete
	CapDirectory
	CapTruncate
	CapRename
	CapChmod
	CapChown
	CapUtime
	CapSymlink
	CapStatfs
)

// Capabilities is a bitset over Capability values.
type Capabilities uint32

// Has reports whether the set includes cap.
func (c Capabilities) Has(cap Capability) bool {
	return c&Capabilities(cap) != 0
}

// With returns a new Capabilities with cap added.
func (c Capabilities) With(cap Capability) Capabilities {
	return c | Capabilities(cap)
}

// FsProvider is the nine-operation storage backend contract. All operations
// are cancellation-safe: implementations must honor ctx and return promptly
// when it is done. Built-in providers implement this directly; plugin
// providers implement it via a generic FFI wrapper (see pkg/plugin).
type FsProvider interface {
	// Stat returns metadata for path, or NotFound if it does not exist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Wstat applies a subset of metadata changes. Each requested sub-change
	// must be within the provider's declared Capabilities or the router
	// short-circuits with NotImplemented before this is called.
	Wstat(ctx context.Context, path string, changes StatChanges) error

	// Statfs returns aggregate filesystem statistics. Providers that do not
	// track this may return a zero-valued FsStats when CapStatfs is absent.
	Statfs(ctx context.Context, path string) (FsStats, error)

	// Open performs an atomic open-and-stat so callers never need a
	// follow-up Stat. Create/exclusive/truncate semantics match POSIX.
	Open(ctx context.Context, path string, flags OpenFlags) (Handle, FileInfo, error)

	// Read returns up to size bytes starting at offset. It may return
	// fewer bytes than requested; an empty result means EOF for regular
	// files. Streaming providers may block up to a provider-defined
	// timeout waiting for new data.
	Read(ctx context.Context, h Handle, offset int64, size int) ([]byte, error)

	// Write writes data at offset, returning the number of bytes written.
	// Append-only streams ignore offset.
	Write(ctx context.Context, h Handle, offset int64, data []byte) (int, error)

	// Close releases a handle. Idempotent from the caller's perspective at
	// the VFS layer: the registry guarantees it calls this at most once per
	// handle, but providers should still treat double-close defensively.
	Close(ctx context.Context, h Handle) error

	// Readdir returns a finite, unordered, restartable listing of path.
	Readdir(ctx context.Context, path string) ([]FileInfo, error)

	// Remove deletes path. Removing a non-empty directory is
	// DirectoryNotEmpty.
	Remove(ctx context.Context, path string) error

	// Capabilities returns the provider's declared ability set. Pure and
	// cheap: implementations must not block or error.
	Capabilities() Capabilities
}
