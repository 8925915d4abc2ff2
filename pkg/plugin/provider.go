package plugin

import (
	"context"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/provider"
)

// cFileInfo mirrors the C FileInfo struct a plugin reads from and writes
// into across the boundary; timestamps travel as Unix seconds since the
// ABI has no shared concept of Go's time.Time.
type cFileInfo struct {
	pathPtr  uintptr
	pathLen  uintptr
	fileType int32
	_        [4]byte
	size     uint64
	mode     uint16
	_        [6]byte
	uid      uint32
	gid      uint32
	atime    int64
	mtime    int64
	ctime    int64
	nlink    uint32
	_        [4]byte
}

func kindFromCode(code int32) provider.Kind {
	switch code {
	case -1:
		return provider.KindNotFound
	case -2:
		return provider.KindAlreadyExists
	case -3:
		return provider.KindPermissionDenied
	case -4:
		return provider.KindIsDirectory
	case -5:
		return provider.KindNotDirectory
	case -6:
		return provider.KindDirectoryNotEmpty
	case -7:
		return provider.KindInvalidHandle
	case -8:
		return provider.KindNotImplemented
	case -9:
		return provider.KindInvalidInput
	case -10:
		return provider.KindTooManyHops
	default:
		return provider.KindInternal
	}
}

func resultErr(res cResult) error {
	if res.isSuccess() {
		return nil
	}
	msg := goString(res.errMessagePtr, res.errMessageLen)
	return &provider.Error{Kind: kindFromCode(res.code), Message: msg}
}

func fileTypeFromC(v int32) provider.FileType {
	switch v {
	case 1:
		return provider.TypeDirectory
	case 2:
		return provider.TypeSymlink
	default:
		return provider.TypeRegular
	}
}

func fileTypeToC(t provider.FileType) int32 {
	switch t {
	case provider.TypeDirectory:
		return 1
	case provider.TypeSymlink:
		return 2
	default:
		return 0
	}
}

func fromCFileInfo(c cFileInfo, path string) provider.FileInfo {
	return provider.FileInfo{
		Path:     path,
		FileType: fileTypeFromC(c.fileType),
		Size:     c.size,
		Mode:     c.mode,
		UID:      c.uid,
		GID:      c.gid,
		Atime:    unixSeconds(c.atime),
		Mtime:    unixSeconds(c.mtime),
		Ctime:    unixSeconds(c.ctime),
		Nlink:    c.nlink,
	}
}

// Provider is the generic adaptor spec.md §4.2 calls "a generic adaptor
// [that] implements the provider contract by calling the vtable,
// translating capability bits, and mapping error codes back to the error
// sum." It boxes the opaque provider pointer returned by create and never
// dereferences it itself.
type Provider struct {
	plugin     *LoadedPlugin
	pool       *Pool
	handle     uintptr // opaque_provider, boxed and only ever passed back to vtable fns
	instanceID string  // uuid minted at create(), distinguishing this mount's instance from any other load of the same plugin

	refs    atomic.Int64
	handles atomic.Uint64
}

// InstanceID uniquely identifies this plugin-backed Provider instance,
// distinct from the plugin's name: loading the same plugin for two mounts
// produces two Providers, each with its own instanceID, so log lines for
// one mount's FFI calls never get confused with another's.
func (p *Provider) InstanceID() string { return p.instanceID }

// NewProvider calls the plugin's create() with config and wraps the
// resulting opaque provider pointer. Every call is offloaded to pool so a
// blocking plugin body cannot starve the host's scheduler.
func NewProvider(ctx context.Context, lp *LoadedPlugin, pool *Pool, config []byte) (*Provider, error) {
	p := &Provider{plugin: lp, pool: pool, instanceID: uuid.NewString()}

	var handle uintptr
	err := pool.Run(ctx, func() error {
		cfgPtr := ptrOf(config)
		handle = call(lp.vtable.createFn, cfgPtr, uintptr(len(config)))
		runtime.KeepAlive(config)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if handle == 0 {
		return nil, provider.Internal("plugin create() returned a nil provider")
	}
	p.handle = handle
	logger.Debug("plugin provider instance created", logger.PluginInstanceID(p.instanceID))
	return p, nil
}

// Retain increments the live-mount reference count, per spec.md §4.2's
// destroy-on-zero-refcount contract.
func (p *Provider) Retain() { p.refs.Add(1) }

// Release decrements the reference count and, once it reaches zero, calls
// the plugin's destroy() to free the opaque provider.
func (p *Provider) Release(ctx context.Context) error {
	if p.refs.Add(-1) > 0 {
		return nil
	}
	logger.Debug("plugin provider instance destroyed", logger.PluginInstanceID(p.instanceID))
	return p.pool.Run(ctx, func() error {
		call(p.plugin.vtable.destroyFn, p.handle)
		return nil
	})
}

func withPath(reqPath string, fn func(ptr, length uintptr)) {
	buf := cBuf(reqPath)
	fn(ptrOf(buf), uintptr(len(reqPath)))
	runtime.KeepAlive(buf)
}

// Stat calls the plugin's stat vtable entry.
func (p *Provider) Stat(ctx context.Context, reqPath string) (provider.FileInfo, error) {
	var info cFileInfo
	var res cResult
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			call(p.plugin.vtable.statFn, p.handle, ptr, length,
				uintptr(unsafe.Pointer(&info)), uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
	if err != nil {
		return provider.FileInfo{}, err
	}
	return fromCFileInfo(info, reqPath), nil
}

// Wstat calls the plugin's wstat vtable entry, marshaling the non-nil
// subset of changes into a cStatChanges record.
func (p *Provider) Wstat(ctx context.Context, reqPath string, changes provider.StatChanges) error {
	c := toCStatChanges(changes)
	var res cResult
	return p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			call(p.plugin.vtable.wstatFn, p.handle, ptr, length,
				uintptr(unsafe.Pointer(&c)), uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
}

// Statfs calls the plugin's statfs vtable entry.
func (p *Provider) Statfs(ctx context.Context, reqPath string) (provider.FsStats, error) {
	var stats provider.FsStats
	var res cResult
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			call(p.plugin.vtable.statfsFn, p.handle, ptr, length,
				uintptr(unsafe.Pointer(&stats)), uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
	if err != nil {
		return provider.FsStats{}, err
	}
	return stats, nil
}

type cOpenFlags struct {
	read, write, appendFlag, create, exclusive, truncate, directory uint8
}

func toCOpenFlags(f provider.OpenFlags) cOpenFlags {
	return cOpenFlags{
		read: boolByte(f.Read), write: boolByte(f.Write), appendFlag: boolByte(f.Append),
		create: boolByte(f.Create), exclusive: boolByte(f.Exclusive),
		truncate: boolByte(f.Truncate), directory: boolByte(f.Directory),
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Open calls the plugin's open vtable entry, returning a provider-local
// opaque handle value the bridge owns for the lifetime of the file.
func (p *Provider) Open(ctx context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	cf := toCOpenFlags(flags)
	var info cFileInfo
	var res cResult
	var rawHandle uintptr
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			rawHandle = call(p.plugin.vtable.openFn, p.handle, ptr, length,
				uintptr(unsafe.Pointer(&cf)), uintptr(unsafe.Pointer(&info)), uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
	if err != nil {
		return 0, provider.FileInfo{}, err
	}
	p.handles.Add(1)
	return provider.Handle(rawHandle), fromCFileInfo(info, reqPath), nil
}

// Read calls the plugin's read vtable entry.
func (p *Provider) Read(ctx context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	out := make([]byte, size)
	var n uintptr
	var res cResult
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		n = call(p.plugin.vtable.readFn, p.handle, uintptr(h), uintptr(offset), uintptr(size),
			ptrOf(out), uintptr(unsafe.Pointer(&res)))
		return resultErr(res)
	})
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Write calls the plugin's write vtable entry.
func (p *Provider) Write(ctx context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	var n uintptr
	var res cResult
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		n = call(p.plugin.vtable.writeFn, p.handle, uintptr(h), uintptr(offset),
			ptrOf(data), uintptr(len(data)), uintptr(unsafe.Pointer(&res)))
		runtime.KeepAlive(data)
		return resultErr(res)
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close calls the plugin's close vtable entry.
func (p *Provider) Close(ctx context.Context, h provider.Handle) error {
	var res cResult
	return p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		call(p.plugin.vtable.closeFn, p.handle, uintptr(h), uintptr(unsafe.Pointer(&res)))
		return resultErr(res)
	})
}

// Readdir calls the plugin's readdir vtable entry. The plugin writes up
// to a fixed-capacity array of cFileInfo records and reports how many it
// filled; a listing larger than that capacity must be paginated by the
// plugin itself (outside this bridge's scope).
func (p *Provider) Readdir(ctx context.Context, reqPath string) ([]provider.FileInfo, error) {
	const maxEntries = 4096
	buf := make([]cFileInfo, maxEntries)
	var count uintptr
	var res cResult
	err := p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			count = call(p.plugin.vtable.readdirFn, p.handle, ptr, length,
				uintptr(unsafe.Pointer(&buf[0])), uintptr(maxEntries), uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
	if err != nil {
		return nil, err
	}

	out := make([]provider.FileInfo, 0, count)
	for i := uintptr(0); i < count; i++ {
		c := buf[i]
		name := goString(c.pathPtr, c.pathLen)
		out = append(out, fromCFileInfo(c, name))
	}
	return out, nil
}

// Remove calls the plugin's remove vtable entry.
func (p *Provider) Remove(ctx context.Context, reqPath string) error {
	var res cResult
	return p.pool.Run(ctx, func() (err error) {
		defer recoverPanic(&err)
		withPath(reqPath, func(ptr, length uintptr) {
			call(p.plugin.vtable.removeFn, p.handle, ptr, length, uintptr(unsafe.Pointer(&res)))
		})
		return resultErr(res)
	})
}

// Capabilities calls the plugin's capabilities vtable entry synchronously:
// spec.md §4.1 requires it be pure and cheap, so it is not offloaded to
// the blocking pool.
func (p *Provider) Capabilities() provider.Capabilities {
	bits := call(p.plugin.vtable.capabilitiesFn, p.handle)
	return provider.Capabilities(uint32(bits))
}

var _ provider.FsProvider = (*Provider)(nil)
