// Package memfs implements an in-memory FsProvider, the baseline backend
// used by the default tenant and the test suite. It declares every
// capability bit, statfs included, and reports synthetic numbers for
// statfs.
package memfs

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fs9fs/fs9/pkg/provider"
)

const allCapabilities = provider.CapRead | provider.CapWrite | provider.CapCreate |
	provider.CapDelete | provider.CapDirectory | provider.CapTruncate |
	provider.CapRename | provider.CapChmod | provider.CapChown |
	provider.CapUtime | provider.CapSymlink | provider.CapStatfs

type node struct {
	info provider.FileInfo
	data []byte
	link string // symlink target, only meaningful for TypeSymlink
}

// FS is an in-memory, fully in-process FsProvider. Paths are stored and
// compared as cleaned, slash-rooted strings. FS is safe for concurrent use.
type FS struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	handles  map[provider.Handle]string
	handleID uint64
}

// New constructs an empty in-memory filesystem with just a root directory.
func New() *FS {
	now := time.Now()
	fs := &FS{
		nodes:   make(map[string]*node),
		handles: make(map[provider.Handle]string),
	}
	fs.nodes["/"] = &node{info: provider.FileInfo{
		Path: "/", FileType: provider.TypeDirectory, Mode: 0o755,
		Atime: now, Mtime: now, Ctime: now, Nlink: 1,
	}}
	return fs
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	c := path.Clean(p)
	if c == "." {
		return "/"
	}
	return c
}

func (fs *FS) parentDir(p string) string {
	if p == "/" {
		return "/"
	}
	return clean(path.Dir(p))
}

// Stat returns metadata for path.
func (fs *FS) Stat(_ context.Context, reqPath string) (provider.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, ok := fs.nodes[clean(reqPath)]
	if !ok {
		return provider.FileInfo{}, provider.NotFound("no such file: " + reqPath)
	}
	return n.info, nil
}

// Wstat applies the requested metadata changes.
func (fs *FS) Wstat(_ context.Context, reqPath string, changes provider.StatChanges) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := clean(reqPath)
	n, ok := fs.nodes[key]
	if !ok {
		return provider.NotFound("no such file: " + reqPath)
	}

	if changes.Mode != nil {
		n.info.Mode = *changes.Mode
	}
	if changes.UID != nil {
		n.info.UID = *changes.UID
	}
	if changes.GID != nil {
		n.info.GID = *changes.GID
	}
	if changes.Mtime != nil {
		n.info.Mtime = *changes.Mtime
	}
	if changes.Atime != nil {
		n.info.Atime = *changes.Atime
	}
	if changes.Size != nil {
		if n.info.FileType != provider.TypeRegular {
			return provider.IsDirectory("cannot truncate a non-regular file")
		}
		n.data = resize(n.data, int(*changes.Size))
		n.info.Size = *changes.Size
	}
	if changes.NewPath != nil {
		newKey := clean(*changes.NewPath)
		if _, exists := fs.nodes[newKey]; exists {
			return provider.AlreadyExists("rename target already exists: " + newKey)
		}
		delete(fs.nodes, key)
		n.info.Path = newKey
		fs.nodes[newKey] = n
		fs.renameDescendants(key, newKey)
	}
	n.info.Ctime = time.Now()
	return nil
}

// renameDescendants moves every node under oldPrefix to live under newPrefix,
// used when a directory is renamed.
func (fs *FS) renameDescendants(oldPrefix, newPrefix string) {
	prefix := oldPrefix
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	for k, n := range fs.nodes {
		if k == oldPrefix || !strings.HasPrefix(k, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(k, oldPrefix)
		newKey := clean(newPrefix + suffix)
		delete(fs.nodes, k)
		n.info.Path = newKey
		fs.nodes[newKey] = n
	}
}

func resize(data []byte, size int) []byte {
	if size <= len(data) {
		return data[:size]
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}

// Statfs returns synthetic, generous statistics: memfs has no real quota.
func (fs *FS) Statfs(_ context.Context, _ string) (provider.FsStats, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var used uint64
	for _, n := range fs.nodes {
		used += uint64(len(n.data))
	}
	const totalBytes = 1 << 40
	return provider.FsStats{
		TotalBytes: totalBytes,
		FreeBytes:  totalBytes - used,
		TotalFiles: 1 << 20,
		FreeFiles:  uint64(1<<20) - uint64(len(fs.nodes)),
	}, nil
}

// Open performs an atomic open-and-stat, creating the node if requested.
func (fs *FS) Open(_ context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := clean(reqPath)
	n, exists := fs.nodes[key]

	if exists && flags.Create && flags.Exclusive {
		return 0, provider.FileInfo{}, provider.AlreadyExists("exists: " + reqPath)
	}

	if !exists {
		if !flags.Create {
			return 0, provider.FileInfo{}, provider.NotFound("no such file: " + reqPath)
		}
		if _, parentOK := fs.nodes[fs.parentDir(key)]; !parentOK {
			return 0, provider.FileInfo{}, provider.NotFound("parent directory does not exist: " + fs.parentDir(key))
		}
		now := time.Now()
		ft := provider.TypeRegular
		mode := uint16(0o644)
		if flags.Directory {
			ft = provider.TypeDirectory
			mode = 0o755
		}
		n = &node{info: provider.FileInfo{
			Path: key, FileType: ft, Mode: mode,
			Atime: now, Mtime: now, Ctime: now, Nlink: 1,
		}}
		fs.nodes[key] = n
	} else if flags.Directory && n.info.FileType != provider.TypeDirectory {
		return 0, provider.FileInfo{}, provider.NotDirectory("not a directory: " + reqPath)
	} else if !flags.Directory && flags.Write && n.info.FileType == provider.TypeDirectory {
		return 0, provider.FileInfo{}, provider.IsDirectory("cannot open a directory for write: " + reqPath)
	}

	if flags.Truncate && n.info.FileType == provider.TypeRegular {
		n.data = nil
		n.info.Size = 0
	}

	fs.handleID++
	h := provider.Handle(fs.handleID)
	fs.handles[h] = key

	return h, n.info, nil
}

// Read returns up to size bytes starting at offset. An empty result past
// end-of-file is returned without error.
func (fs *FS) Read(_ context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	key, ok := fs.handles[h]
	if !ok {
		return nil, provider.InvalidHandle("no such handle")
	}
	n, ok := fs.nodes[key]
	if !ok {
		return nil, provider.NotFound("file removed under open handle: " + key)
	}
	if offset >= int64(len(n.data)) {
		return []byte{}, nil
	}
	end := offset + int64(size)
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	out := make([]byte, end-offset)
	copy(out, n.data[offset:end])
	return out, nil
}

// Write writes data at offset, growing the file as necessary.
func (fs *FS) Write(_ context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key, ok := fs.handles[h]
	if !ok {
		return 0, provider.InvalidHandle("no such handle")
	}
	n, ok := fs.nodes[key]
	if !ok {
		return 0, provider.NotFound("file removed under open handle: " + key)
	}

	end := offset + int64(len(data))
	if end > int64(len(n.data)) {
		n.data = resize(n.data, int(end))
	}
	copy(n.data[offset:end], data)
	n.info.Size = uint64(len(n.data))
	n.info.Mtime = time.Now()
	return len(data), nil
}

// Close releases a handle. A second close of the same handle value returns
// InvalidHandle, matching the VFS-level contract.
func (fs *FS) Close(_ context.Context, h provider.Handle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles[h]; !ok {
		return provider.InvalidHandle("no such handle")
	}
	delete(fs.handles, h)
	return nil
}

// Readdir lists the direct children of path. Self-entries are not
// included, per the convention documented in SPEC_FULL.md §9.
func (fs *FS) Readdir(_ context.Context, reqPath string) ([]provider.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	key := clean(reqPath)
	dir, ok := fs.nodes[key]
	if !ok {
		return nil, provider.NotFound("no such directory: " + reqPath)
	}
	if dir.info.FileType != provider.TypeDirectory {
		return nil, provider.NotDirectory("not a directory: " + reqPath)
	}

	prefix := key
	if prefix != "/" {
		prefix += "/"
	}

	var out []provider.FileInfo
	for k, n := range fs.nodes {
		if k == key || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if strings.Contains(rest, "/") {
			continue // not a direct child
		}
		out = append(out, n.info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Remove deletes path. Removing a non-empty directory is rejected.
func (fs *FS) Remove(_ context.Context, reqPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := clean(reqPath)
	n, ok := fs.nodes[key]
	if !ok {
		return provider.NotFound("no such file: " + reqPath)
	}
	if n.info.FileType == provider.TypeDirectory {
		prefix := key
		if prefix != "/" {
			prefix += "/"
		}
		for k := range fs.nodes {
			if k != key && strings.HasPrefix(k, prefix) {
				return provider.DirectoryNotEmpty("directory not empty: " + reqPath)
			}
		}
	}
	delete(fs.nodes, key)
	return nil
}

// Capabilities reports the full capability set memfs supports.
func (fs *FS) Capabilities() provider.Capabilities {
	return provider.Capabilities(allCapabilities)
}

var _ provider.FsProvider = (*FS)(nil)
