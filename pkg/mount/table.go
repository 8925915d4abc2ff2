// Package mount implements the path-to-provider binding table used by the
// VFS router to resolve request paths via longest-prefix matching.
package mount

import (
	"sort"
	"strings"
	"sync"

	"github.com/fs9fs/fs9/pkg/provider"
)

// Entry binds an absolute mount point to a provider and the capability set
// declared at mount time.
type Entry struct {
	MountPoint   string
	Provider     provider.FsProvider
	ProviderType string
	Capabilities provider.Capabilities
}

// Table is a sorted map of mount points guarded by a reader-writer lock:
// reads (path resolution) vastly outnumber writes (mount/unmount), and the
// occasional write only needs to re-sort a small slice.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sorted  []string // cached descending sort of entries' keys
}

// New returns an empty mount table.
func New() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Mount installs an entry at mountPoint. It returns AlreadyExists if the
// exact mount point is already bound.
func (t *Table) Mount(e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[e.MountPoint]; ok {
		return provider.AlreadyExists("mount point already bound: " + e.MountPoint)
	}
	t.entries[e.MountPoint] = e
	t.resort()
	return nil
}

// Unmount removes the entry at mountPoint, if any. It returns the removed
// entry's provider so the caller can decide whether to tear it down.
func (t *Table) Unmount(mountPoint string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[mountPoint]
	if !ok {
		return Entry{}, false
	}
	delete(t.entries, mountPoint)
	t.resort()
	return e, true
}

// List returns a snapshot of all mount entries.
func (t *Table) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.entries))
	for _, key := range t.sorted {
		out = append(out, t.entries[key])
	}
	return out
}

// resort rebuilds the descending-order key slice. Must be called with mu
// held for writing.
func (t *Table) resort() {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	t.sorted = keys
}

// Resolve finds the mount entry whose mount point is the longest prefix of
// requestPath, returning the entry and the path made relative to that
// mount point (re-rooted with a leading slash, as providers expect paths
// rooted at their own "/"). It walks the descending-sorted key list and
// stops as soon as keys stop sharing a prefix with requestPath, giving
// O(log N) expected behavior for a reasonably distributed mount set.
func (t *Table) Resolve(requestPath string) (Entry, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, m := range t.sorted {
		if m > requestPath {
			continue
		}
		if !sharesPrefix(m, requestPath) {
			break
		}
		if matches(m, requestPath) {
			return t.entries[m], relativePath(m, requestPath), nil
		}
	}

	if e, ok := t.entries["/"]; ok {
		return e, relativePath("/", requestPath), nil
	}

	return Entry{}, "", provider.NotFound("no mount covers path: " + requestPath)
}

// matches reports whether requestPath is exactly m or lives under m.
func matches(m, requestPath string) bool {
	if requestPath == m {
		return true
	}
	if m == "/" {
		return strings.HasPrefix(requestPath, "/")
	}
	return strings.HasPrefix(requestPath, m+"/")
}

// sharesPrefix reports whether m and requestPath share at least one leading
// character, used to decide when to stop scanning the descending key list.
func sharesPrefix(m, requestPath string) bool {
	return len(m) > 0 && len(requestPath) > 0 && m[0] == requestPath[0] || m == "/"
}

// relativePath strips mountPoint from requestPath and re-leading-slashes
// the remainder so providers see paths rooted at their own "/".
func relativePath(mountPoint, requestPath string) string {
	if mountPoint == "/" {
		if requestPath == "" {
			return "/"
		}
		return requestPath
	}
	rel := strings.TrimPrefix(requestPath, mountPoint)
	if rel == "" {
		return "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}
