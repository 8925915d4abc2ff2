package handlers

import (
	"net/http"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/fsprovider"
	"github.com/fs9fs/fs9/pkg/mount"
	"github.com/fs9fs/fs9/pkg/mountstore"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/metrics"
	"github.com/fs9fs/fs9/pkg/plugin"
	"github.com/fs9fs/fs9/pkg/provider"
)

// MountHandler implements the mount administration endpoints: listing a
// tenant's mounts, adding one (operator+), and removing one (operator+),
// per spec.md §6.1 and the unmount supplement recorded in SPEC_FULL.md §12.
type MountHandler struct {
	Namespaces *namespace.Manager
	Providers  *fsprovider.Factory
	Store      *mountstore.Store // nil if persistence is disabled
}

// NewMountHandler constructs a MountHandler.
func NewMountHandler(namespaces *namespace.Manager, providers *fsprovider.Factory, store *mountstore.Store) *MountHandler {
	return &MountHandler{Namespaces: namespaces, Providers: providers, Store: store}
}

func (h *MountHandler) router(r *http.Request) (*namespace.Namespace, *auth.RequestContext, error) {
	rc := auth.FromContext(r.Context())
	if rc == nil {
		return nil, nil, provider.PermissionDenied("no authenticated tenant")
	}
	return h.Namespaces.GetOrCreate(rc.Tenant), rc, nil
}

// List handles GET /api/v1/mounts.
func (h *MountHandler) List(w http.ResponseWriter, r *http.Request) {
	ns, _, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	entries := ns.Router.ListMounts()
	out := make([]MountInfoDTO, len(entries))
	for i, e := range entries {
		out[i] = MountInfoDTO{
			Path:         e.MountPoint,
			Provider:     e.ProviderType,
			Capabilities: uint32(e.Capabilities),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Mount handles POST /api/v1/mount. Requires the operator or admin role.
func (h *MountHandler) Mount(w http.ResponseWriter, r *http.Request) {
	ns, rc, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	var req MountRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	if req.Path == "" || req.Provider == "" {
		writeOperationError(w, provider.InvalidInput("\"path\" and \"provider\" are required"))
		return
	}

	built, err := h.Providers.Build(r.Context(), req.Provider, req.Config)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	entry := mount.Entry{
		MountPoint:   req.Path,
		Provider:     built.Provider,
		ProviderType: req.Provider,
		Capabilities: built.Capabilities,
	}
	if err := ns.Router.Mount(entry); err != nil {
		if built.PluginHandle != nil {
			built.PluginHandle.Release(r.Context()) //nolint:errcheck
		}
		writeOperationError(w, err)
		return
	}

	if h.Store != nil {
		if err := h.Store.Put(r.Context(), mountstore.Entry{
			Tenant: rc.Tenant, Path: req.Path, ProviderType: req.Provider, Config: req.Config,
		}); err != nil {
			logger.WarnCtx(r.Context(), "failed to persist mount", logger.Err(err))
		}
	}

	fields := []any{logger.MountPath(req.Path), logger.Provider(req.Provider), logger.Tenant(rc.Tenant)}
	if built.PluginHandle != nil {
		fields = append(fields, logger.PluginInstanceID(built.PluginHandle.InstanceID()))
	}
	logger.InfoCtx(r.Context(), "mount installed", fields...)
	writeEmpty(w, http.StatusOK)
}

// Unmount handles DELETE /api/v1/mount?path=P. Requires the operator or
// admin role. Not part of spec.md's HTTP table verbatim, but required to
// make the mount table's own "after unmount... NotFound" invariant (§8)
// reachable over HTTP; see SPEC_FULL.md §12.
func (h *MountHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	ns, rc, err := h.router(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	path, err := queryPath(r)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	entry, ok := ns.Router.Unmount(path)
	if !ok {
		writeOperationError(w, provider.NotFound("no mount bound at "+path))
		return
	}

	if h.Store != nil {
		if err := h.Store.Delete(r.Context(), rc.Tenant, path); err != nil {
			logger.WarnCtx(r.Context(), "failed to remove persisted mount", logger.Err(err))
		}
	}

	if pp, ok := entry.Provider.(*plugin.Provider); ok {
		if err := pp.Release(r.Context()); err != nil {
			logger.WarnCtx(r.Context(), "plugin provider release failed", logger.Err(err))
		}
	}

	logger.InfoCtx(r.Context(), "mount removed", logger.MountPath(path), logger.Tenant(rc.Tenant))
	writeEmpty(w, http.StatusOK)
}

// PluginHandler implements the plugin administration endpoints.
type PluginHandler struct {
	Plugins *plugin.Manager
}

// NewPluginHandler constructs a PluginHandler.
func NewPluginHandler(plugins *plugin.Manager) *PluginHandler {
	return &PluginHandler{Plugins: plugins}
}

// List handles GET /api/v1/plugin/list.
func (h *PluginHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Plugins.List())
}

// Load handles POST /api/v1/plugin/load. Requires the admin role.
func (h *PluginHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req PluginLoadRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	if req.Name == "" {
		writeOperationError(w, provider.InvalidInput("\"name\" is required"))
		return
	}
	if err := h.Plugins.Load(r.Context(), req.Name, req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeEmpty(w, http.StatusOK)
}

// Unload handles POST /api/v1/plugin/unload. Requires the admin role.
func (h *PluginHandler) Unload(w http.ResponseWriter, r *http.Request) {
	var req PluginUnloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	if err := h.Plugins.Unload(r.Context(), req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeEmpty(w, http.StatusOK)
}

// AuthAdminHandler implements the token-revocation endpoint.
type AuthAdminHandler struct {
	Revocations *auth.RevocationSet
	Cache       *auth.VerificationCache
	Metrics     metrics.Metrics
}

// NewAuthAdminHandler constructs an AuthAdminHandler.
func NewAuthAdminHandler(revocations *auth.RevocationSet, cache *auth.VerificationCache, m metrics.Metrics) *AuthAdminHandler {
	return &AuthAdminHandler{Revocations: revocations, Cache: cache, Metrics: m}
}

// Revoke handles POST /api/v1/auth/revoke. Requires the admin role. Hashes
// the token, inserts it into the revocation set, and evicts any cached
// positive verification result so a revoked token is rejected even
// within its unexpired lifetime (spec.md §4.9, scenario S5).
func (h *AuthAdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := decodeBody(r, &req); err != nil {
		writeOperationError(w, err)
		return
	}
	if req.Token == "" {
		writeOperationError(w, provider.InvalidInput("\"token\" is required"))
		return
	}

	hash := auth.HashToken(req.Token)
	h.Revocations.Revoke(hash)
	h.Cache.Invalidate(hash)
	metrics.RecordRevocation(h.Metrics)

	logger.InfoCtx(r.Context(), "token revoked")
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler implements the unauthenticated liveness endpoint.
type HealthHandler struct {
	InstanceID string
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(instanceID string) *HealthHandler {
	return &HealthHandler{InstanceID: instanceID}
}

// healthResponse is GET /health's body.
type healthResponse struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", InstanceID: h.InstanceID})
}
