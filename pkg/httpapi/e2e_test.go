package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/fsprovider"
	"github.com/fs9fs/fs9/pkg/httpapi"
	"github.com/fs9fs/fs9/pkg/metaclient"
	metasvclocal "github.com/fs9fs/fs9/pkg/metasvc/local"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/plugin"
)

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// testServer builds a full httpapi.Deps stack, backed by the reference
// local metadata service, and returns an httptest.Server plus a helper
// that mints a bearer token for (tenant, roles).
type testServer struct {
	*httptest.Server
	meta *metasvclocal.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	meta, err := metasvclocal.New("test-secret-at-least-32-bytes-long!", "fs9-test")
	require.NoError(t, err)
	metaServer := httptest.NewServer(meta)
	t.Cleanup(metaServer.Close)

	metaClient := metaclient.New(metaclient.Config{BaseURL: metaServer.URL})
	cache, err := auth.NewVerificationCache(1024, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	revocations, err := auth.NewRevocationSet(1024, time.Hour)
	require.NoError(t, err)
	t.Cleanup(revocations.Close)

	pluginMgr := plugin.NewManager(nil)
	namespaces := namespace.New()
	t.Cleanup(func() { namespaces.DrainAll(context.Background()) })

	deps := httpapi.Deps{
		InstanceID:        "test-instance",
		Namespaces:        namespaces,
		Providers:         fsprovider.New(pluginMgr),
		Plugins:           pluginMgr,
		Meta:              metaClient,
		VerificationCache: cache,
		Revocations:       revocations,
		AuthEnabled:       true,
	}

	srv := httptest.NewServer(httpapi.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, meta: meta}
}

func (ts *testServer) token(t *testing.T, tenant string, roles ...string) string {
	t.Helper()
	tok, err := ts.meta.IssueToken(tenant, "test-user", roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// S1 — round-trip over the full HTTP surface: POST /open creates /a.txt,
// and a file written via PUT /upload is visible via GET /stat.
func TestE2EOpenWriteReadRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "t1", "admin")

	resp := ts.do(t, http.MethodPost, "/api/v1/mount", token, []byte(`{"path":"/","provider":"memfs"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/v1/open", token, []byte(`{"path":"/a.txt","flags":{"write":true,"create":true}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var openResp struct {
		HandleID string `json:"handle_id"`
	}
	decodeJSON(t, resp, &openResp)
	require.NotEmpty(t, openResp.HandleID)

	resp = ts.do(t, http.MethodPut, "/api/v1/upload?path=/b.txt", token, []byte("hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/api/v1/stat?path=/b.txt", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fi struct {
		Path string `json:"path"`
		Size uint64 `json:"size"`
	}
	decodeJSON(t, resp, &fi)
	assert.Equal(t, "/b.txt", fi.Path)
	assert.Equal(t, uint64(5), fi.Size)

	resp = ts.do(t, http.MethodGet, "/api/v1/download?path=/b.txt", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := readAll(t, resp)
	assert.Equal(t, "hello", string(data))
}

// S2 — a file created under one tenant's token is invisible to another
// tenant.
func TestE2ETenantIsolation(t *testing.T) {
	ts := newTestServer(t)
	t1 := ts.token(t, "t1", "admin")
	t2 := ts.token(t, "t2", "admin")

	resp := ts.do(t, http.MethodPost, "/api/v1/mount", t1, []byte(`{"path":"/","provider":"memfs"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.do(t, http.MethodPost, "/api/v1/mount", t2, []byte(`{"path":"/","provider":"memfs"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPut, "/api/v1/upload?path=/iso.txt", t1, []byte("A"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/api/v1/stat?path=/iso.txt", t2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

// S4 — range download returns exactly the requested byte window with the
// right headers.
func TestE2ERangeDownload(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "t1", "admin")

	resp := ts.do(t, http.MethodPost, "/api/v1/mount", token, []byte(`{"path":"/","provider":"memfs"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	resp = ts.do(t, http.MethodPut, "/api/v1/upload?path=/range.bin", token, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/download?path=/range.bin", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Range", "bytes=10-19")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 10-19/256", resp.Header.Get("Content-Range"))
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	data := readAll(t, resp)
	assert.Equal(t, payload[10:20], data)
}

// S5 — a revoked token is rejected even within its unexpired lifetime.
func TestE2ETokenRevocation(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token(t, "t1", "admin")

	resp := ts.do(t, http.MethodGet, "/api/v1/stat?path=/", adminToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode) // no mount yet, but auth succeeded
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/v1/auth/revoke", adminToken, []byte(`{"token":"`+adminToken+`"}`))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/api/v1/stat?path=/", adminToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

// Role gating: a non-operator token cannot install a mount.
func TestE2ERoleGating(t *testing.T) {
	ts := newTestServer(t)
	plainToken := ts.token(t, "t1")

	resp := ts.do(t, http.MethodPost, "/api/v1/mount", plainToken, []byte(`{"path":"/","provider":"memfs"}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

// Missing bearer credential is rejected before ever reaching a handler.
func TestE2EMissingBearerRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/v1/stat?path=/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
