package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for FS9 operations, following OpenTelemetry
// semantic conventions where applicable.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	AttrOperation = "fs9.operation"  // stat, wstat, statfs, open, read, write, close, readdir, remove
	AttrPath      = "fs9.path"       // path argument
	AttrMountPath = "fs9.mount_path" // resolved mount point prefix
	AttrProvider  = "fs9.provider"   // backing provider type
	AttrHandleID  = "fs9.handle_id"  // opaque handle id
	AttrOffset    = "fs9.offset"
	AttrCount     = "fs9.count"
	AttrSize      = "fs9.size"
	AttrMode      = "fs9.mode"
	AttrEntries   = "fs9.entries"
	AttrHopCount  = "fs9.hop_count"
	AttrEOF       = "fs9.eof"

	AttrTenant    = "fs9.tenant"
	AttrNamespace = "fs9.namespace"

	AttrBreakerState = "metaclient.breaker_state"
	AttrAttempt      = "metaclient.attempt"

	AttrPluginPath = "plugin.path"
	AttrPluginName = "plugin.name"

	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"
)

// Span names for FS9 operations.
const (
	SpanRequest = "fs9.request"

	SpanOpOpen    = "fs9.open"
	SpanOpRead    = "fs9.read"
	SpanOpWrite   = "fs9.write"
	SpanOpStat    = "fs9.stat"
	SpanOpWstat   = "fs9.wstat"
	SpanOpCreate  = "fs9.create"
	SpanOpRemove  = "fs9.remove"
	SpanOpWalk    = "fs9.walk"
	SpanOpReaddir = "fs9.readdir"
	SpanOpClose   = "fs9.close"

	SpanMetaClientCall  = "metaclient.call"
	SpanPluginDispatch  = "plugin.dispatch"
	SpanNamespaceRoute  = "namespace.route"
	SpanHandleLookup    = "handle.lookup"
	SpanMountResolve    = "mount.resolve"
)

// ClientIP returns an attribute for the client IP address.
func ClientIP(ip string) attribute.KeyValue { return attribute.String(AttrClientIP, ip) }

// ClientAddr returns an attribute for the full client address.
func ClientAddr(addr string) attribute.KeyValue { return attribute.String(AttrClientAddr, addr) }

// Operation returns an attribute for the FS9 operation name.
func Operation(op string) attribute.KeyValue { return attribute.String(AttrOperation, op) }

// Path returns an attribute for a filesystem path.
func Path(path string) attribute.KeyValue { return attribute.String(AttrPath, path) }

// MountPath returns an attribute for a resolved mount point prefix.
func MountPath(path string) attribute.KeyValue { return attribute.String(AttrMountPath, path) }

// Provider returns an attribute for the backing provider type.
func Provider(name string) attribute.KeyValue { return attribute.String(AttrProvider, name) }

// HandleID returns an attribute for an opaque handle identifier.
func HandleID(id uint64) attribute.KeyValue { return attribute.Int64(AttrHandleID, int64(id)) }

// Offset returns an attribute for an I/O offset.
func Offset(offset int64) attribute.KeyValue { return attribute.Int64(AttrOffset, offset) }

// Count returns an attribute for a requested byte count.
func Count(count int) attribute.KeyValue { return attribute.Int64(AttrCount, int64(count)) }

// Size returns an attribute for a file size.
func Size(size uint64) attribute.KeyValue { return attribute.Int64(AttrSize, int64(size)) }

// Mode returns an attribute for a file mode.
func Mode(mode uint32) attribute.KeyValue { return attribute.Int64(AttrMode, int64(mode)) }

// Entries returns an attribute for a directory entry count.
func Entries(n int) attribute.KeyValue { return attribute.Int(AttrEntries, n) }

// HopCount returns an attribute for proxy hop count consumed.
func HopCount(n int) attribute.KeyValue { return attribute.Int(AttrHopCount, n) }

// EOF returns an attribute for an end-of-file indicator.
func EOF(eof bool) attribute.KeyValue { return attribute.Bool(AttrEOF, eof) }

// Tenant returns an attribute for the tenant identifier.
func Tenant(id string) attribute.KeyValue { return attribute.String(AttrTenant, id) }

// Namespace returns an attribute for the namespace.
func Namespace(ns string) attribute.KeyValue { return attribute.String(AttrNamespace, ns) }

// BreakerState returns an attribute for circuit breaker state.
func BreakerState(state string) attribute.KeyValue { return attribute.String(AttrBreakerState, state) }

// Attempt returns an attribute for a retry attempt number.
func Attempt(n int) attribute.KeyValue { return attribute.Int(AttrAttempt, n) }

// PluginPath returns an attribute for a loaded plugin's path.
func PluginPath(path string) attribute.KeyValue { return attribute.String(AttrPluginPath, path) }

// PluginName returns an attribute for a plugin-registered provider type.
func PluginName(name string) attribute.KeyValue { return attribute.String(AttrPluginName, name) }

// Bucket returns an attribute for an S3 bucket name.
func Bucket(name string) attribute.KeyValue { return attribute.String(AttrBucket, name) }

// StorageKey returns an attribute for an S3 object key.
func StorageKey(key string) attribute.KeyValue { return attribute.String(AttrKey, key) }

// Region returns an attribute for a cloud region.
func Region(region string) attribute.KeyValue { return attribute.String(AttrRegion, region) }

// StartOpSpan starts a span for an FS9 operation, tagging it with the
// operation name, resolved path, and handle id when available.
func StartOpSpan(ctx context.Context, op string, path string, handleID uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Operation(op)}
	if path != "" {
		allAttrs = append(allAttrs, Path(path))
	}
	if handleID != 0 {
		allAttrs = append(allAttrs, HandleID(handleID))
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "fs9."+op, trace.WithAttributes(allAttrs...))
}

// StartMetaClientSpan starts a span for a metadata service client call.
func StartMetaClientSpan(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanMetaClientCall, trace.WithAttributes(append([]attribute.KeyValue{attribute.String("metaclient.method", method)}, attrs...)...))
}

// StartPluginSpan starts a span for a dispatch into a loaded plugin.
func StartPluginSpan(ctx context.Context, pluginName, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{PluginName(pluginName), Operation(op)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanPluginDispatch, trace.WithAttributes(allAttrs...))
}
