// Package badgerfs implements an FsProvider backed by an embedded BadgerDB
// instance, grounded on dgraph-io/badger/v4 the way the teacher's
// pkg/metadata/store/badger package stores its records: JSON-encoded values
// under string keys inside BadgerDB transactions. File metadata and content
// live under separate key prefixes (m: and d:), and directory listings are
// served by prefix scan.
package badgerfs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/fs9fs/fs9/pkg/provider"
)

const capabilities = provider.CapRead | provider.CapWrite | provider.CapCreate |
	provider.CapDelete | provider.CapDirectory | provider.CapTruncate | provider.CapRename | provider.CapStatfs

const (
	metaPrefix = "m:" // m:<path> -> JSON(record)
	dataPrefix = "d:" // d:<path> -> raw bytes
)

type record struct {
	FileType provider.FileType
	Size     uint64
	Mode     uint16
	Mtime    time.Time
	Ctime    time.Time
}

// FS is a paged, key-value-backed FsProvider. Every open file handle holds
// the full object body in memory between open and close; for a handle,
// BadgerDB itself is only touched on Open and Close, and Read and Write
// work on the in-memory copy.
type FS struct {
	db *badgerdb.DB

	mu      sync.Mutex
	handles map[provider.Handle]*handleState
	nextID  atomic.Uint64
}

type handleState struct {
	path  string
	dirty bool
	data  []byte
}

// Open constructs a BadgerDB-backed provider rooted at dir, creating the
// on-disk directory store if it does not already exist.
func Open(dir string) (*FS, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	fs := &FS{db: db, handles: make(map[provider.Handle]*handleState)}
	if err := fs.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *FS) ensureRoot() error {
	return fs.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + "/")); err == nil {
			return nil
		}
		now := time.Now()
		rec := record{FileType: provider.TypeDirectory, Mode: 0o755, Mtime: now, Ctime: now}
		data, _ := json.Marshal(rec)
		return txn.Set([]byte(metaPrefix+"/"), data)
	})
}

// Close releases the underlying BadgerDB handle. Not part of FsProvider;
// called by the mount-teardown path once the last mount referencing this
// provider instance is removed.
func (fs *FS) Close() error {
	return fs.db.Close()
}

func (fs *FS) getRecord(path string) (record, error) {
	var rec record
	err := fs.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) })
	})
	if err == badgerdb.ErrKeyNotFound {
		return record{}, provider.NotFound("no such file: " + path)
	}
	if err != nil {
		return record{}, provider.Internal(err.Error())
	}
	return rec, nil
}

func (fs *FS) putRecord(path string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return provider.Internal(err.Error())
	}
	if err := fs.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(metaPrefix+path), data)
	}); err != nil {
		return provider.Internal(err.Error())
	}
	return nil
}

func toFileInfo(path string, rec record) provider.FileInfo {
	return provider.FileInfo{
		Path: path, FileType: rec.FileType, Size: rec.Size, Mode: rec.Mode,
		Mtime: rec.Mtime, Ctime: rec.Ctime, Atime: rec.Mtime, Nlink: 1,
	}
}

// Stat returns metadata for path.
func (fs *FS) Stat(_ context.Context, reqPath string) (provider.FileInfo, error) {
	rec, err := fs.getRecord(reqPath)
	if err != nil {
		return provider.FileInfo{}, err
	}
	return toFileInfo(reqPath, rec), nil
}

// Wstat applies the requested metadata changes.
func (fs *FS) Wstat(_ context.Context, reqPath string, changes provider.StatChanges) error {
	rec, err := fs.getRecord(reqPath)
	if err != nil {
		return err
	}

	if changes.Mode != nil {
		rec.Mode = *changes.Mode
	}
	if changes.Mtime != nil {
		rec.Mtime = *changes.Mtime
	}
	if changes.Size != nil {
		if rec.FileType != provider.TypeRegular {
			return provider.IsDirectory("cannot truncate a non-regular file")
		}
		if err := fs.resizeData(reqPath, int(*changes.Size)); err != nil {
			return err
		}
		rec.Size = *changes.Size
	}
	rec.Ctime = time.Now()

	if changes.NewPath != nil {
		if err := fs.rename(reqPath, *changes.NewPath, rec); err != nil {
			return err
		}
		return nil
	}

	return fs.putRecord(reqPath, rec)
}

func (fs *FS) resizeData(path string, size int) error {
	return fs.db.Update(func(txn *badgerdb.Txn) error {
		var data []byte
		item, err := txn.Get([]byte(dataPrefix + path))
		if err == nil {
			_ = item.Value(func(val []byte) error { data = append([]byte(nil), val...); return nil })
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		if size <= len(data) {
			data = data[:size]
		} else {
			grown := make([]byte, size)
			copy(grown, data)
			data = grown
		}
		return txn.Set([]byte(dataPrefix+path), data)
	})
}

func (fs *FS) rename(oldPath, newPath string, rec record) error {
	return fs.db.Update(func(txn *badgerdb.Txn) error {
		data, _ := json.Marshal(rec)
		if err := txn.Delete([]byte(metaPrefix + oldPath)); err != nil {
			return err
		}
		if err := txn.Set([]byte(metaPrefix+newPath), data); err != nil {
			return err
		}
		item, err := txn.Get([]byte(dataPrefix + oldPath))
		if err == nil {
			var body []byte
			_ = item.Value(func(val []byte) error { body = append([]byte(nil), val...); return nil })
			if err := txn.Delete([]byte(dataPrefix + oldPath)); err != nil {
				return err
			}
			if err := txn.Set([]byte(dataPrefix+newPath), body); err != nil {
				return err
			}
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

// Statfs returns zero-valued FsStats; BadgerDB exposes no fixed quota.
func (fs *FS) Statfs(context.Context, string) (provider.FsStats, error) {
	return provider.FsStats{}, nil
}

// Open performs an atomic open-and-stat, creating the record if requested.
func (fs *FS) Open(_ context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	rec, err := fs.getRecord(reqPath)
	exists := err == nil
	if !exists && provider.KindOf(err) != provider.KindNotFound {
		return 0, provider.FileInfo{}, err
	}

	if exists && flags.Create && flags.Exclusive {
		return 0, provider.FileInfo{}, provider.AlreadyExists("exists: " + reqPath)
	}
	if !exists {
		if !flags.Create {
			return 0, provider.FileInfo{}, provider.NotFound("no such file: " + reqPath)
		}
		now := time.Now()
		ft := provider.TypeRegular
		mode := uint16(0o644)
		if flags.Directory {
			ft = provider.TypeDirectory
			mode = 0o755
		}
		rec = record{FileType: ft, Mode: mode, Mtime: now, Ctime: now}
		if err := fs.putRecord(reqPath, rec); err != nil {
			return 0, provider.FileInfo{}, err
		}
	} else if flags.Directory && rec.FileType != provider.TypeDirectory {
		return 0, provider.FileInfo{}, provider.NotDirectory("not a directory: " + reqPath)
	} else if !flags.Directory && flags.Write && rec.FileType == provider.TypeDirectory {
		return 0, provider.FileInfo{}, provider.IsDirectory("cannot open a directory for write: " + reqPath)
	}

	var data []byte
	if rec.FileType == provider.TypeRegular {
		if flags.Truncate {
			rec.Size = 0
			if err := fs.putRecord(reqPath, rec); err != nil {
				return 0, provider.FileInfo{}, err
			}
		} else {
			data, err = fs.readData(reqPath)
			if err != nil && provider.KindOf(err) != provider.KindNotFound {
				return 0, provider.FileInfo{}, err
			}
		}
	}

	fs.mu.Lock()
	h := provider.Handle(fs.nextID.Add(1))
	fs.handles[h] = &handleState{path: reqPath, data: data}
	fs.mu.Unlock()

	return h, toFileInfo(reqPath, rec), nil
}

func (fs *FS) readData(path string) ([]byte, error) {
	var out []byte
	err := fs.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { out = append([]byte(nil), val...); return nil })
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, provider.NotFound("no data for: " + path)
	}
	if err != nil {
		return nil, provider.Internal(err.Error())
	}
	return out, nil
}

// Read returns up to size bytes starting at offset from the in-memory copy
// loaded at Open time.
func (fs *FS) Read(_ context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	st, err := fs.state(h)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(st.data)) {
		return []byte{}, nil
	}
	end := offset + int64(size)
	if end > int64(len(st.data)) {
		end = int64(len(st.data))
	}
	out := make([]byte, end-offset)
	copy(out, st.data[offset:end])
	return out, nil
}

// Write updates the in-memory copy at offset; the change is flushed to
// BadgerDB on Close.
func (fs *FS) Write(_ context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	st, err := fs.state(h)
	if err != nil {
		return 0, err
	}
	end := offset + int64(len(data))
	if end > int64(len(st.data)) {
		grown := make([]byte, end)
		copy(grown, st.data)
		st.data = grown
	}
	copy(st.data[offset:end], data)
	st.dirty = true
	return len(data), nil
}

func (fs *FS) state(h provider.Handle) (*handleState, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	st, ok := fs.handles[h]
	if !ok {
		return nil, provider.InvalidHandle("no such handle")
	}
	return st, nil
}

// Close flushes any dirty write buffer to BadgerDB and releases the handle.
func (fs *FS) Close(_ context.Context, h provider.Handle) error {
	fs.mu.Lock()
	st, ok := fs.handles[h]
	if ok {
		delete(fs.handles, h)
	}
	fs.mu.Unlock()

	if !ok {
		return provider.InvalidHandle("no such handle")
	}
	if !st.dirty {
		return nil
	}

	if err := fs.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(dataPrefix+st.path), st.data)
	}); err != nil {
		return provider.Internal(err.Error())
	}

	rec, err := fs.getRecord(st.path)
	if err != nil {
		return err
	}
	rec.Size = uint64(len(st.data))
	rec.Mtime = time.Now()
	return fs.putRecord(st.path, rec)
}

// Readdir lists the direct children of path via a prefix scan.
func (fs *FS) Readdir(_ context.Context, reqPath string) ([]provider.FileInfo, error) {
	rec, err := fs.getRecord(reqPath)
	if err != nil {
		return nil, err
	}
	if rec.FileType != provider.TypeDirectory {
		return nil, provider.NotDirectory("not a directory: " + reqPath)
	}

	prefix := reqPath
	if prefix != "/" {
		prefix += "/"
	}
	scanPrefix := []byte(metaPrefix + prefix)

	var out []provider.FileInfo
	err = fs.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			key := string(it.Item().Key())
			name := strings.TrimPrefix(key, metaPrefix+prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			var childRec record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &childRec) }); err != nil {
				return err
			}
			out = append(out, toFileInfo(prefix+name, childRec))
		}
		return nil
	})
	if err != nil {
		return nil, provider.Internal(err.Error())
	}
	return out, nil
}

// Remove deletes path. Removing a non-empty directory is rejected.
func (fs *FS) Remove(_ context.Context, reqPath string) error {
	rec, err := fs.getRecord(reqPath)
	if err != nil {
		return err
	}
	if rec.FileType == provider.TypeDirectory {
		children, err := fs.Readdir(context.Background(), reqPath)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return provider.DirectoryNotEmpty("directory not empty: " + reqPath)
		}
	}
	return fs.db.Update(func(txn *badgerdb.Txn) error {
		_ = txn.Delete([]byte(dataPrefix + reqPath))
		return txn.Delete([]byte(metaPrefix + reqPath))
	})
}

// Capabilities reports the capability set this provider supports.
func (fs *FS) Capabilities() provider.Capabilities {
	return provider.Capabilities(capabilities)
}

var _ provider.FsProvider = (*FS)(nil)
