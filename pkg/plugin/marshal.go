package plugin

import (
	"fmt"
	"time"

	"github.com/fs9fs/fs9/pkg/provider"
)

func unixSeconds(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// cStatChanges mirrors the C wstat-changes record: one has* flag per
// optional field, since the C ABI has no null-pointer-free way to express
// Go's *T "absent" convention for value fields.
type cStatChanges struct {
	hasMode bool
	mode    uint16

	hasUID bool
	uid    uint32

	hasGID bool
	gid    uint32

	hasSize bool
	size    uint64

	hasMtime bool
	mtime    int64

	hasAtime bool
	atime    int64

	hasNewPath bool
	newPath    [256]byte
	newPathLen uint32
}

func toCStatChanges(c provider.StatChanges) cStatChanges {
	var out cStatChanges
	if c.Mode != nil {
		out.hasMode, out.mode = true, *c.Mode
	}
	if c.UID != nil {
		out.hasUID, out.uid = true, *c.UID
	}
	if c.GID != nil {
		out.hasGID, out.gid = true, *c.GID
	}
	if c.Size != nil {
		out.hasSize, out.size = true, *c.Size
	}
	if c.Mtime != nil {
		out.hasMtime, out.mtime = true, c.Mtime.Unix()
	}
	if c.Atime != nil {
		out.hasAtime, out.atime = true, c.Atime.Unix()
	}
	if c.NewPath != nil {
		n := copy(out.newPath[:], *c.NewPath)
		out.hasNewPath, out.newPathLen = true, uint32(n)
	}
	return out
}

// recoverPanic converts a plugin-call panic into an Internal error, per
// spec.md §4.2's requirement that a misbehaving plugin cannot bring down
// the host process.
func recoverPanic(errOut *error) {
	if r := recover(); r != nil {
		*errOut = provider.Internal(fmt.Sprintf("plugin panic: %v", r))
	}
}
