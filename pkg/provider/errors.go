package provider

import (
	"errors"
	"fmt"
)

// Kind is the closed sum of error kinds a provider may return. Every
// provider error, built-in or plugin-originated, is mapped to exactly one
// Kind so the HTTP layer can translate it to a status code at the boundary.
type Kind int

const (
	KindNotFound Kind = iota
	KindAlreadyExists
	KindPermissionDenied
	KindIsDirectory
	KindNotDirectory
	KindDirectoryNotEmpty
	KindInvalidHandle
	KindNotImplemented
	KindInvalidInput
	KindTooManyHops
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindIsDirectory:
		return "IsDirectory"
	case KindNotDirectory:
		return "NotDirectory"
	case KindDirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case KindInvalidHandle:
		return "InvalidHandle"
	case KindNotImplemented:
		return "NotImplemented"
	case KindInvalidInput:
		return "InvalidInput"
	case KindTooManyHops:
		return "TooManyHops"
	default:
		return "Internal"
	}
}

// Error is the concrete error type returned by FsProvider implementations
// and everything layered on top of them (router, namespace manager, HTTP
// handlers).
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Internal wraps message as a KindInternal error, as used for plugin panics
// recovered at the FFI boundary and any unexpected backend failure.
func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

func NotFound(message string) *Error          { return &Error{Kind: KindNotFound, Message: message} }
func AlreadyExists(message string) *Error     { return &Error{Kind: KindAlreadyExists, Message: message} }
func PermissionDenied(message string) *Error  { return &Error{Kind: KindPermissionDenied, Message: message} }
func IsDirectory(message string) *Error       { return &Error{Kind: KindIsDirectory, Message: message} }
func NotDirectory(message string) *Error      { return &Error{Kind: KindNotDirectory, Message: message} }
func DirectoryNotEmpty(message string) *Error { return &Error{Kind: KindDirectoryNotEmpty, Message: message} }
func InvalidHandle(message string) *Error     { return &Error{Kind: KindInvalidHandle, Message: message} }
func NotImplemented(message string) *Error    { return &Error{Kind: KindNotImplemented, Message: message} }
func InvalidInput(message string) *Error      { return &Error{Kind: KindInvalidInput, Message: message} }
func TooManyHops(message string) *Error       { return &Error{Kind: KindTooManyHops, Message: message} }

// KindOf extracts the Kind from err, defaulting to KindInternal for any
// error that did not originate from this package.
func KindOf(err error) Kind {
	if err == nil {
		return -1
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
