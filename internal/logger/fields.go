package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the FS9 server.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request & Operation
	// ========================================================================
	KeyRequestID = "request_id" // HTTP request ID (chi middleware)
	KeyOperation = "operation"  // FS9 operation: stat, wstat, statfs, open, read, write, close, readdir, remove
	KeyStatus    = "status"     // HTTP status code returned
	KeyMethod    = "method"     // HTTP method

	// ========================================================================
	// Tenancy & Namespace
	// ========================================================================
	KeyTenant    = "tenant"    // Tenant identifier (ns claim of the bearer token)
	KeyNamespace = "namespace" // Namespace the request is scoped to
	KeyRoles     = "roles"     // Roles asserted by the caller's token

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // Path passed to the operation
	KeyMountPath  = "mount_path"  // Mount point prefix a path resolved against
	KeyProvider   = "provider"    // Provider type backing a mount (memfs, localdisk, s3, badger, httpproxy, plugin)
	KeyHandleID   = "handle_id"   // Opaque handle identifier
	KeySize       = "size"        // File size in bytes
	KeyMode       = "mode"        // File mode/permissions
	KeyEntries    = "entries"     // Number of directory entries returned
	KeyHopCount   = "hop_count"   // Proxy hop count consumed so far

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeyEOF          = "eof"           // End of file indicator

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP = "client_ip" // Client IP address

	// ========================================================================
	// Plugin Bridge
	// ========================================================================
	KeyPluginPath       = "plugin_path"        // Path to loaded plugin shared object
	KeyPluginName       = "plugin_name"        // Provider type name registered by the plugin
	KeyPluginInstanceID = "plugin_instance_id" // uuid minted per plugin Provider instance, for correlating FFI calls across a mount's lifetime

	// ========================================================================
	// Circuit Breaker / Retry
	// ========================================================================
	KeyBreakerState = "breaker_state" // Circuit breaker state: closed, open, half_open
	KeyAttempt      = "attempt"       // Retry attempt number
	KeyMaxRetries   = "max_retries"   // Maximum retry attempts

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // FS9 error kind (NotFound, PermissionDenied, ...)
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// RequestID returns a slog.Attr for the HTTP request ID.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// Operation returns a slog.Attr for the FS9 operation name.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Status returns a slog.Attr for an HTTP status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// Method returns a slog.Attr for the HTTP method.
func Method(m string) slog.Attr { return slog.String(KeyMethod, m) }

// Tenant returns a slog.Attr for the tenant identifier.
func Tenant(id string) slog.Attr { return slog.String(KeyTenant, id) }

// Namespace returns a slog.Attr for the namespace.
func Namespace(ns string) slog.Attr { return slog.String(KeyNamespace, ns) }

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// MountPath returns a slog.Attr for a mount point prefix.
func MountPath(p string) slog.Attr { return slog.String(KeyMountPath, p) }

// Provider returns a slog.Attr for a provider type name.
func Provider(name string) slog.Attr { return slog.String(KeyProvider, name) }

// HandleID returns a slog.Attr for an opaque handle identifier.
func HandleID(id uint64) slog.Attr { return slog.Uint64(KeyHandleID, id) }

// Size returns a slog.Attr for a byte size.
func Size(s uint64) slog.Attr { return slog.Uint64(KeySize, s) }

// Mode returns a slog.Attr for a file mode.
func Mode(m uint32) slog.Attr { return slog.Any(KeyMode, m) }

// Entries returns a slog.Attr for a directory entry count.
func Entries(n int) slog.Attr { return slog.Int(KeyEntries, n) }

// HopCount returns a slog.Attr for proxy hop count.
func HopCount(n int) slog.Attr { return slog.Int(KeyHopCount, n) }

// Offset returns a slog.Attr for an I/O offset.
func Offset(off int64) slog.Attr { return slog.Int64(KeyOffset, off) }

// Count returns a slog.Attr for a requested byte count.
func Count(c int) slog.Attr { return slog.Int(KeyCount, c) }

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// EOF returns a slog.Attr for an end-of-file indicator.
func EOF(eof bool) slog.Attr { return slog.Bool(KeyEOF, eof) }

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// PluginPath returns a slog.Attr for a loaded plugin's path.
func PluginPath(p string) slog.Attr { return slog.String(KeyPluginPath, p) }

// PluginName returns a slog.Attr for a plugin-registered provider type.
func PluginName(name string) slog.Attr { return slog.String(KeyPluginName, name) }

// PluginInstanceID returns a slog.Attr for a plugin Provider instance's id.
func PluginInstanceID(id string) slog.Attr { return slog.String(KeyPluginInstanceID, id) }

// BreakerState returns a slog.Attr for circuit breaker state.
func BreakerState(state string) slog.Attr { return slog.String(KeyBreakerState, state) }

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for the maximum retry attempts.
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for an FS9 error code.
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }
