package plugin

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// LoadedPlugin is a dynamically loaded plugin library whose ABI version has
// already been verified and whose vtable has already been resolved.
type LoadedPlugin struct {
	handle  uintptr
	vtable  *cVtable
	Name    string
	Version string
}

// Loader opens plugin shared libraries and verifies their ABI before
// handing back a LoadedPlugin.
type Loader struct{}

// NewLoader constructs a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load dlopens the shared library at path, verifies its declared ABI
// version against ABIVersion, and resolves its vtable. Mismatch or any
// resolution failure refuses to load, per spec.md §4.2.
func (l *Loader) Load(path string) (*LoadedPlugin, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}

	var abiVersionFn func() uint64
	purego.RegisterLibFunc(&abiVersionFn, handle, "plugin_abi_version")
	version := abiVersionFn()
	if version != ABIVersion {
		return nil, fmt.Errorf("plugin %s declares ABI version %d, host expects %d", path, version, ABIVersion)
	}

	var vtableFn func() uintptr
	purego.RegisterLibFunc(&vtableFn, handle, "plugin_vtable")
	vtablePtr := vtableFn()
	if vtablePtr == 0 {
		return nil, fmt.Errorf("plugin %s returned a nil vtable", path)
	}
	vt := (*cVtable)(unsafe.Pointer(vtablePtr))
	if vt.abiVersion != ABIVersion {
		return nil, fmt.Errorf("plugin %s vtable ABI version %d mismatches declared version %d", path, vt.abiVersion, version)
	}

	return &LoadedPlugin{
		handle:  handle,
		vtable:  vt,
		Name:    goString(vt.namePtr, vt.nameLen),
		Version: goString(vt.versionPtr, vt.versionLen),
	}, nil
}

// call invokes a raw vtable function pointer with uintptr-encoded
// arguments, the lowest common denominator purego.SyscallN can marshal
// portably across platforms without a C compiler in the loop.
func call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}

// cBuf returns a NUL-terminated byte buffer for s, suitable for passing a
// pointer into across the FFI boundary. The caller must keep the returned
// slice alive (via runtime.KeepAlive) for the duration of the call.
func cBuf(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
