// Package localdisk implements a passthrough FsProvider rooted at a local
// directory on the host filesystem, grounded on the standard library os/io
// packages the way the spec's "local disk passthrough" backend is described
// as a contract-only collaborator in spec.md §6.
package localdisk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fs9fs/fs9/pkg/provider"
)

const capabilities = provider.CapRead | provider.CapWrite | provider.CapCreate |
	provider.CapDelete | provider.CapDirectory | provider.CapTruncate |
	provider.CapRename | provider.CapChmod | provider.CapUtime | provider.CapStatfs

// FS roots an FsProvider at root on the local disk. Every path passed to its
// methods is resolved relative to root and prevented from escaping it.
type FS struct {
	root string

	mu      sync.Mutex
	handles map[provider.Handle]*os.File
	nextID  atomic.Uint64
}

// New constructs a local-disk provider rooted at root, creating the
// directory if it does not already exist.
func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &FS{root: abs, handles: make(map[provider.Handle]*os.File)}, nil
}

// resolve maps a VFS-relative path to an absolute host path, rejecting any
// attempt to escape root via "..".
func (fs *FS) resolve(reqPath string) (string, error) {
	rel := filepath.Clean(strings.TrimLeft(reqPath, "/"))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", provider.InvalidInput("path escapes provider root: " + reqPath)
	}
	return filepath.Join(fs.root, rel), nil
}

func toFileInfo(reqPath string, fi os.FileInfo) provider.FileInfo {
	ft := provider.TypeRegular
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		ft = provider.TypeSymlink
	case fi.IsDir():
		ft = provider.TypeDirectory
	}
	return provider.FileInfo{
		Path:     reqPath,
		FileType: ft,
		Size:     uint64(fi.Size()),
		Mode:     uint16(fi.Mode().Perm()),
		Mtime:    fi.ModTime(),
		Ctime:    fi.ModTime(),
		Atime:    fi.ModTime(),
		Nlink:    1,
	}
}

func mapErr(reqPath string, err error) error {
	switch {
	case os.IsNotExist(err):
		return provider.NotFound("no such file: " + reqPath)
	case os.IsExist(err):
		return provider.AlreadyExists("exists: " + reqPath)
	case os.IsPermission(err):
		return provider.PermissionDenied(reqPath)
	default:
		return provider.Internal(err.Error())
	}
}

// Stat returns metadata for path.
func (fs *FS) Stat(_ context.Context, reqPath string) (provider.FileInfo, error) {
	full, err := fs.resolve(reqPath)
	if err != nil {
		return provider.FileInfo{}, err
	}
	fi, err := os.Lstat(full)
	if err != nil {
		return provider.FileInfo{}, mapErr(reqPath, err)
	}
	return toFileInfo(reqPath, fi), nil
}

// Wstat applies the requested metadata changes via the host filesystem.
func (fs *FS) Wstat(_ context.Context, reqPath string, changes provider.StatChanges) error {
	full, err := fs.resolve(reqPath)
	if err != nil {
		return err
	}

	if changes.Mode != nil {
		if err := os.Chmod(full, os.FileMode(*changes.Mode).Perm()); err != nil {
			return mapErr(reqPath, err)
		}
	}
	if changes.Size != nil {
		if err := os.Truncate(full, int64(*changes.Size)); err != nil {
			return mapErr(reqPath, err)
		}
	}
	if changes.Mtime != nil || changes.Atime != nil {
		mt := time.Now()
		at := time.Now()
		if changes.Mtime != nil {
			mt = *changes.Mtime
		}
		if changes.Atime != nil {
			at = *changes.Atime
		}
		if err := os.Chtimes(full, at, mt); err != nil {
			return mapErr(reqPath, err)
		}
	}
	if changes.NewPath != nil {
		newFull, err := fs.resolve(*changes.NewPath)
		if err != nil {
			return err
		}
		if err := os.Rename(full, newFull); err != nil {
			return mapErr(reqPath, err)
		}
	}
	return nil
}

// Statfs returns zero-valued FsStats for every path; it does not query the
// host filesystem backing root.
func (fs *FS) Statfs(context.Context, string) (provider.FsStats, error) {
	return provider.FsStats{}, nil
}

// Open performs an atomic open-and-stat against the host filesystem.
func (fs *FS) Open(_ context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	full, err := fs.resolve(reqPath)
	if err != nil {
		return 0, provider.FileInfo{}, err
	}

	if flags.Directory && flags.Create {
		if err := os.Mkdir(full, 0o755); err != nil && !os.IsExist(err) {
			return 0, provider.FileInfo{}, mapErr(reqPath, err)
		}
		fi, err := os.Lstat(full)
		if err != nil {
			return 0, provider.FileInfo{}, mapErr(reqPath, err)
		}
		return fs.mintDirHandle(reqPath), toFileInfo(reqPath, fi), nil
	}

	var osFlags int
	switch {
	case flags.Read && flags.Write:
		osFlags = os.O_RDWR
	case flags.Write:
		osFlags = os.O_WRONLY
	default:
		osFlags = os.O_RDONLY
	}
	if flags.Create {
		osFlags |= os.O_CREATE
	}
	if flags.Exclusive {
		osFlags |= os.O_EXCL
	}
	if flags.Truncate {
		osFlags |= os.O_TRUNC
	}
	if flags.Append {
		osFlags |= os.O_APPEND
	}

	f, err := os.OpenFile(full, osFlags, 0o644)
	if err != nil {
		return 0, provider.FileInfo{}, mapErr(reqPath, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, provider.FileInfo{}, mapErr(reqPath, err)
	}
	if fi.IsDir() && flags.Write {
		f.Close()
		return 0, provider.FileInfo{}, provider.IsDirectory("cannot open a directory for write: " + reqPath)
	}

	fs.mu.Lock()
	h := provider.Handle(fs.nextID.Add(1))
	fs.handles[h] = f
	fs.mu.Unlock()

	return h, toFileInfo(reqPath, fi), nil
}

// mintDirHandle registers a handle for a directory open that carries no
// underlying *os.File (directories are not reopened for read/write here).
func (fs *FS) mintDirHandle(_ string) provider.Handle {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := provider.Handle(fs.nextID.Add(1))
	fs.handles[h] = nil
	return h
}

// Read reads up to size bytes at offset.
func (fs *FS) Read(_ context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	f, err := fs.file(h)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, provider.IsDirectory("cannot read a directory handle")
	}

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, provider.Internal(err.Error())
	}
	return buf[:n], nil
}

// Write writes data at offset.
func (fs *FS) Write(_ context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	f, err := fs.file(h)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, provider.IsDirectory("cannot write a directory handle")
	}
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, provider.Internal(err.Error())
	}
	return n, nil
}

func (fs *FS) file(h provider.Handle) (*os.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.handles[h]
	if !ok {
		return nil, provider.InvalidHandle("no such handle")
	}
	return f, nil
}

// Close releases a handle.
func (fs *FS) Close(_ context.Context, h provider.Handle) error {
	fs.mu.Lock()
	f, ok := fs.handles[h]
	if ok {
		delete(fs.handles, h)
	}
	fs.mu.Unlock()

	if !ok {
		return provider.InvalidHandle("no such handle")
	}
	if f == nil {
		return nil
	}
	if err := f.Close(); err != nil {
		return provider.Internal(err.Error())
	}
	return nil
}

// Readdir lists the direct children of path.
func (fs *FS) Readdir(_ context.Context, reqPath string) ([]provider.FileInfo, error) {
	full, err := fs.resolve(reqPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, mapErr(reqPath, err)
	}

	base := strings.TrimSuffix(reqPath, "/")
	out := make([]provider.FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, toFileInfo(base+"/"+e.Name(), fi))
	}
	return out, nil
}

// Remove deletes path. A non-empty directory returns DirectoryNotEmpty.
func (fs *FS) Remove(_ context.Context, reqPath string) error {
	full, err := fs.resolve(reqPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if pathErr, ok := err.(*os.PathError); ok && strings.Contains(pathErr.Err.Error(), "directory not empty") {
			return provider.DirectoryNotEmpty("directory not empty: " + reqPath)
		}
		return mapErr(reqPath, err)
	}
	return nil
}

// Capabilities reports the capability set this provider supports.
func (fs *FS) Capabilities() provider.Capabilities {
	return provider.Capabilities(capabilities)
}

var _ provider.FsProvider = (*FS)(nil)
