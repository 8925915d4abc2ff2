//go:build integration

package s3fs

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fs9fs/fs9/pkg/provider"
)

// localstackHelper manages the Localstack container backing these
// integration tests, the same way the teacher's payload/store/s3 tests do.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		h := &localstackHelper{endpoint: endpoint}
		h.createClient(t)
		return h
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").WithPort("4566/tcp").WithStartupTimeout(60*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	h := &localstackHelper{container: container, endpoint: fmt.Sprintf("http://%s:%s", host, port.Port())}
	h.createClient(t)
	return h
}

func (h *localstackHelper) createClient(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	h.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &h.endpoint
		o.UsePathStyle = true
	})
}

func (h *localstackHelper) createBucket(t *testing.T, bucket string) {
	t.Helper()
	_, err := h.client.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)
}

func (h *localstackHelper) cleanup() {
	if h.container != nil {
		_ = h.container.Terminate(context.Background())
	}
}

func newTestFS(t *testing.T, h *localstackHelper) *FS {
	t.Helper()
	bucket := fmt.Sprintf("fs9-test-%d", time.Now().UnixNano())
	h.createBucket(t, bucket)
	return New(h.client, Config{Bucket: bucket, KeyPrefix: "fs9/"})
}

func TestFS_OpenWriteReadRoundTrip(t *testing.T) {
	h := newLocalstackHelper(t)
	defer h.cleanup()
	ctx := context.Background()
	fs := newTestFS(t, h)

	handle, info, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", info.Path)

	n, err := fs.Write(ctx, handle, 0, []byte("hello s3"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, fs.Close(ctx, handle))

	stat, err := fs.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 8, stat.Size)

	h2, _, err := fs.Open(ctx, "/a.txt", provider.OpenFlags{Read: true})
	require.NoError(t, err)
	data, err := fs.Read(ctx, h2, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello s3", string(data))
	require.NoError(t, fs.Close(ctx, h2))
}

func TestFS_StatNotFound(t *testing.T) {
	h := newLocalstackHelper(t)
	defer h.cleanup()
	fs := newTestFS(t, h)

	_, err := fs.Stat(context.Background(), "/missing.txt")
	require.Error(t, err)
	assert.Equal(t, provider.KindNotFound, provider.KindOf(err))
}

func TestFS_DirectoryMarkerAndReaddir(t *testing.T) {
	h := newLocalstackHelper(t)
	defer h.cleanup()
	ctx := context.Background()
	fs := newTestFS(t, h)

	_, _, err := fs.Open(ctx, "/dir", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	handle, _, err := fs.Open(ctx, "/dir/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	require.NoError(t, fs.Close(ctx, handle))

	entries, err := fs.Readdir(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, provider.TypeDirectory, entries[0].FileType)
}

func TestFS_RemoveNonEmptyDirectoryFails(t *testing.T) {
	h := newLocalstackHelper(t)
	defer h.cleanup()
	ctx := context.Background()
	fs := newTestFS(t, h)

	_, _, err := fs.Open(ctx, "/dir", provider.OpenFlags{Create: true, Directory: true})
	require.NoError(t, err)
	handle, _, err := fs.Open(ctx, "/dir/a.txt", provider.OpenFlags{Write: true, Create: true})
	require.NoError(t, err)
	require.NoError(t, fs.Close(ctx, handle))

	err = fs.Remove(ctx, "/dir")
	require.Error(t, err)
	assert.Equal(t, provider.KindDirectoryNotEmpty, provider.KindOf(err))
}

func TestFS_Capabilities(t *testing.T) {
	fs := New(nil, Config{Bucket: "unused"})
	caps := fs.Capabilities()
	assert.True(t, caps.Has(provider.CapRead))
	assert.True(t, caps.Has(provider.CapWrite))
	assert.True(t, caps.Has(provider.CapDirectory))
}
