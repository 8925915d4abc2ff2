// Package plugin implements the C-ABI dynamic loading bridge described in
// spec.md §4.2 and §6.3: a plugin is a shared library exporting
// plugin_abi_version and plugin_vtable, the latter a constant record of
// nine filesystem-operation function pointers plus create/destroy/
// capabilities. The bridge is built on ebitengine/purego, the only
// cgo-free dynamic-library loader the dependency set carries, using its
// Dlopen/Dlsym/SyscallN primitives to resolve and invoke those pointers
// without a cgo toolchain.
package plugin

import "unsafe"

// ABIVersion is the C-ABI version this host implements. A plugin whose
// plugin_abi_version() disagrees is refused at load time.
const ABIVersion uint64 = 1

// cVtable mirrors the constant record a plugin's plugin_vtable() symbol
// points at. Every field but abiVersion is either a length or a raw
// function-pointer/address value; Go never dereferences these directly,
// it only ever hands them back to purego.SyscallN.
type cVtable struct {
	abiVersion uint64

	namePtr, nameLen       uintptr
	versionPtr, versionLen uintptr

	createFn       uintptr
	destroyFn      uintptr
	capabilitiesFn uintptr

	statFn    uintptr
	wstatFn   uintptr
	statfsFn  uintptr
	openFn    uintptr
	readFn    uintptr
	writeFn   uintptr
	closeFn   uintptr
	readdirFn uintptr
	removeFn  uintptr
}

// cResult mirrors the { code, error_message_ptr, error_message_len } record
// every vtable call beyond create/capabilities returns by value on the C
// side; the bridge receives it by reference (the plugin writes into a
// caller-supplied out-pointer, the convention documented alongside the
// ABI in spec.md §6.3).
type cResult struct {
	code           int32
	_              [4]byte // padding to keep errMessagePtr word-aligned
	errMessagePtr  uintptr
	errMessageLen  uintptr
}

func (r cResult) isSuccess() bool { return r.code == 0 }

// cBytes returns the error message this result carries, copying it out of
// plugin-owned memory immediately as required by the ABI's buffer-lifetime
// contract (spec.md §4.2): the plugin only guarantees the buffer is valid
// for the duration of the call that produced it.
func cBytes(ptr uintptr, length uintptr) []byte {
	if ptr == 0 || length == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(length))
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func goString(ptr uintptr, length uintptr) string {
	return string(cBytes(ptr, length))
}
