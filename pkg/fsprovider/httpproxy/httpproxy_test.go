package httpproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/provider"
	"github.com/fs9fs/fs9/pkg/router"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/stat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireFileInfo{
			Path: r.URL.Query().Get("path"), FileType: "regular", Size: 5,
			Mtime: time.Now().Format(time.RFC3339), Ctime: time.Now().Format(time.RFC3339), Atime: time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/api/v1/open", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openResponse{HandleID: "42", Info: wireFileInfo{Path: "/remote.txt", FileType: "regular"}})
	})
	mux.HandleFunc("/api/v1/read", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("/api/v1/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apiError{Kind: "NotFound", Message: "no such file"})
	})
	mux.HandleFunc("/api/v1/remove", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apiError{Kind: "NotFound", Message: "gone"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFS_StatRoundTrip(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	fs := New(Config{BaseURL: srv.URL, Token: "tok"})

	ctx := router.WithHopBudget(context.Background(), 8)
	info, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", info.Path)
	assert.EqualValues(t, 5, info.Size)
}

func TestFS_OpenThenReadUsesRemoteHandle(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	fs := New(Config{BaseURL: srv.URL})

	ctx := router.WithHopBudget(context.Background(), 8)
	h, info, err := fs.Open(ctx, "/remote.txt", provider.OpenFlags{Read: true})
	require.NoError(t, err)
	assert.Equal(t, "/remote.txt", info.Path)

	data, err := fs.Read(ctx, h, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFS_ErrorEnvelopeMapsToProviderKind(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	fs := New(Config{BaseURL: srv.URL})

	ctx := router.WithHopBudget(context.Background(), 8)
	err := fs.Remove(ctx, "/gone.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

func TestFS_HopBudgetExhaustedFailsBeforeNetworkCall(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(t)
	fs := New(Config{BaseURL: srv.URL})

	ctx := router.WithHopBudget(context.Background(), 0)
	_, err := fs.Stat(ctx, "/a.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindTooManyHops, provider.KindOf(err))
}
