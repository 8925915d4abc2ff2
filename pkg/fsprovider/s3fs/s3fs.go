// Package s3fs implements an FsProvider backed by an S3-compatible object
// store, grounded on aws-sdk-go-v2 the same way the teacher's block stores
// wrap an *s3.Client. Directories are represented as zero-byte objects
// whose key ends in "/"; handles are purely in-memory buffers flushed to
// S3 on close, since S3 has no notion of an open file descriptor.
package s3fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fs9fs/fs9/pkg/provider"
)

const capabilities = provider.CapRead | provider.CapWrite | provider.CapCreate |
	provider.CapDelete | provider.CapDirectory | provider.CapTruncate | provider.CapStatfs

// Config configures an S3-backed provider.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	KeyPrefix      string
	ForcePathStyle bool
}

// FS is an FsProvider backed by a single S3 bucket.
type FS struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu      sync.Mutex
	handles map[provider.Handle]*openHandle
	nextID  atomic.Uint64
}

type openHandle struct {
	key    string
	write  bool
	create bool
	buf    *bytes.Buffer
}

// New constructs an S3-backed provider using an existing client.
func New(client *s3.Client, cfg Config) *FS {
	return &FS{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		handles:   make(map[provider.Handle]*openHandle),
	}
}

// NewFromConfig builds an S3 client from cfg and constructs a provider,
// mirroring the teacher's blocks/store/s3.NewFromConfig constructor.
func NewFromConfig(ctx context.Context, cfg Config) (*FS, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func (fs *FS) key(reqPath string) string {
	return fs.keyPrefix + strings.TrimPrefix(reqPath, "/")
}

func (fs *FS) dirKey(reqPath string) string {
	k := fs.key(reqPath)
	if !strings.HasSuffix(k, "/") {
		k += "/"
	}
	return k
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	var nfb *types.NotFound
	return errors.As(err, &nf) || errors.As(err, &nfb)
}

// Stat returns metadata for path via a HeadObject call, falling back to a
// directory-marker probe.
func (fs *FS) Stat(ctx context.Context, reqPath string) (provider.FileInfo, error) {
	if reqPath == "/" {
		return provider.FileInfo{Path: "/", FileType: provider.TypeDirectory, Mode: 0o755, Nlink: 1}, nil
	}

	out, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(fs.key(reqPath))})
	if err == nil {
		return provider.FileInfo{
			Path: reqPath, FileType: provider.TypeRegular,
			Size: uint64(aws.ToInt64(out.ContentLength)), Mode: 0o644,
			Mtime: aws.ToTime(out.LastModified), Ctime: aws.ToTime(out.LastModified), Nlink: 1,
		}, nil
	}
	if !isNotFound(err) {
		return provider.FileInfo{}, provider.Internal(err.Error())
	}

	if _, dirErr := fs.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(fs.dirKey(reqPath))}); dirErr == nil {
		return provider.FileInfo{Path: reqPath, FileType: provider.TypeDirectory, Mode: 0o755, Nlink: 1}, nil
	}

	return provider.FileInfo{}, provider.NotFound("no such object: " + reqPath)
}

// Wstat supports truncation (re-upload of a shortened object) and rename
// (copy+delete, since S3 has no atomic rename).
func (fs *FS) Wstat(ctx context.Context, reqPath string, changes provider.StatChanges) error {
	if changes.Size != nil {
		data, err := fs.readAll(ctx, reqPath)
		if err != nil {
			return err
		}
		size := int(*changes.Size)
		if size <= len(data) {
			data = data[:size]
		} else {
			grown := make([]byte, size)
			copy(grown, data)
			data = grown
		}
		if err := fs.putObject(ctx, fs.key(reqPath), data); err != nil {
			return err
		}
	}
	if changes.NewPath != nil {
		src := fmt.Sprintf("%s/%s", fs.bucket, fs.key(reqPath))
		if _, err := fs.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket: aws.String(fs.bucket), Key: aws.String(fs.key(*changes.NewPath)), CopySource: aws.String(src),
		}); err != nil {
			return provider.Internal(err.Error())
		}
		if _, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(fs.key(reqPath))}); err != nil {
			return provider.Internal(err.Error())
		}
	}
	return nil
}

// Statfs returns zero-valued FsStats: S3 buckets have no fixed quota
// visible through this API.
func (fs *FS) Statfs(context.Context, string) (provider.FsStats, error) {
	return provider.FsStats{}, nil
}

func (fs *FS) readAll(ctx context.Context, reqPath string) ([]byte, error) {
	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(fs.key(reqPath))})
	if err != nil {
		if isNotFound(err) {
			return nil, provider.NotFound("no such object: " + reqPath)
		}
		return nil, provider.Internal(err.Error())
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, provider.Internal(err.Error())
	}
	return data, nil
}

func (fs *FS) putObject(ctx context.Context, key string, data []byte) error {
	_, err := fs.client.PutObject(ctx, &s3.PutObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(key), Body: bytes.NewReader(data)})
	if err != nil {
		return provider.Internal(err.Error())
	}
	return nil
}

// Open performs an atomic open-and-stat. Writes are buffered in memory and
// flushed to S3 on Close, since S3 objects are immutable once written.
func (fs *FS) Open(ctx context.Context, reqPath string, flags provider.OpenFlags) (provider.Handle, provider.FileInfo, error) {
	if flags.Directory && flags.Create {
		if err := fs.putObject(ctx, fs.dirKey(reqPath), nil); err != nil {
			return 0, provider.FileInfo{}, err
		}
		h := fs.mint(&openHandle{key: fs.key(reqPath)})
		return h, provider.FileInfo{Path: reqPath, FileType: provider.TypeDirectory, Mode: 0o755, Nlink: 1}, nil
	}

	info, err := fs.Stat(ctx, reqPath)
	exists := err == nil
	if exists && info.FileType == provider.TypeDirectory && flags.Write {
		return 0, provider.FileInfo{}, provider.IsDirectory("cannot open a directory for write: " + reqPath)
	}
	if !exists {
		if !flags.Create {
			return 0, provider.FileInfo{}, provider.NotFound("no such object: " + reqPath)
		}
		info = provider.FileInfo{Path: reqPath, FileType: provider.TypeRegular, Mode: 0o644}
	} else if flags.Create && flags.Exclusive {
		return 0, provider.FileInfo{}, provider.AlreadyExists("exists: " + reqPath)
	}

	oh := &openHandle{key: fs.key(reqPath), write: flags.Write, create: flags.Create}
	if flags.Write && !flags.Truncate {
		existing, err := fs.readAll(ctx, reqPath)
		if err != nil && provider.KindOf(err) != provider.KindNotFound {
			return 0, provider.FileInfo{}, err
		}
		oh.buf = bytes.NewBuffer(existing)
	} else {
		oh.buf = &bytes.Buffer{}
	}

	h := fs.mint(oh)
	return h, info, nil
}

func (fs *FS) mint(oh *openHandle) provider.Handle {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := provider.Handle(fs.nextID.Add(1))
	fs.handles[h] = oh
	return h
}

// Read reads up to size bytes at offset from the object's full body.
func (fs *FS) Read(ctx context.Context, h provider.Handle, offset int64, size int) ([]byte, error) {
	oh, err := fs.handle(h)
	if err != nil {
		return nil, err
	}
	data, err := fs.readAll(ctx, "/"+strings.TrimPrefix(oh.key, fs.keyPrefix))
	if err != nil {
		if provider.KindOf(err) == provider.KindNotFound {
			return []byte{}, nil
		}
		return nil, err
	}
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// Write buffers data at offset in memory; it is flushed to S3 on Close.
func (fs *FS) Write(_ context.Context, h provider.Handle, offset int64, data []byte) (int, error) {
	oh, err := fs.handle(h)
	if err != nil {
		return 0, err
	}
	existing := oh.buf.Bytes()
	end := offset + int64(len(data))
	if end > int64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:end], data)
	oh.buf = bytes.NewBuffer(existing)
	return len(data), nil
}

func (fs *FS) handle(h provider.Handle) (*openHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	oh, ok := fs.handles[h]
	if !ok {
		return nil, provider.InvalidHandle("no such handle")
	}
	return oh, nil
}

// Close flushes any buffered writes to S3 and releases the handle.
func (fs *FS) Close(ctx context.Context, h provider.Handle) error {
	fs.mu.Lock()
	oh, ok := fs.handles[h]
	if ok {
		delete(fs.handles, h)
	}
	fs.mu.Unlock()

	if !ok {
		return provider.InvalidHandle("no such handle")
	}
	if oh.write && oh.buf != nil {
		return fs.putObject(ctx, oh.key, oh.buf.Bytes())
	}
	return nil
}

// Readdir lists objects one level below path using a delimited ListObjectsV2
// call, so S3's flat namespace presents as a directory tree.
func (fs *FS) Readdir(ctx context.Context, reqPath string) ([]provider.FileInfo, error) {
	prefix := fs.dirKey(reqPath)
	if reqPath == "/" {
		prefix = fs.keyPrefix
	}

	var out []provider.FileInfo
	var token *string
	for {
		resp, err := fs.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(fs.bucket), Prefix: aws.String(prefix), Delimiter: aws.String("/"), ContinuationToken: token,
		})
		if err != nil {
			return nil, provider.Internal(err.Error())
		}
		for _, p := range resp.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			out = append(out, provider.FileInfo{Path: joinVFS(reqPath, name), FileType: provider.TypeDirectory, Mode: 0o755, Nlink: 1})
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue // directory marker itself
			}
			name := strings.TrimPrefix(key, prefix)
			out = append(out, provider.FileInfo{
				Path: joinVFS(reqPath, name), FileType: provider.TypeRegular,
				Size: uint64(aws.ToInt64(obj.Size)), Mode: 0o644,
				Mtime: aws.ToTime(obj.LastModified), Nlink: 1,
			})
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func joinVFS(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// Remove deletes the object at path, or its directory marker.
func (fs *FS) Remove(ctx context.Context, reqPath string) error {
	info, err := fs.Stat(ctx, reqPath)
	if err != nil {
		return err
	}
	key := fs.key(reqPath)
	if info.FileType == provider.TypeDirectory {
		key = fs.dirKey(reqPath)
		entries, err := fs.Readdir(ctx, reqPath)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return provider.DirectoryNotEmpty("directory not empty: " + reqPath)
		}
	}
	if _, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(fs.bucket), Key: aws.String(key)}); err != nil {
		return provider.Internal(err.Error())
	}
	return nil
}

// Capabilities reports the capability set this provider supports.
func (fs *FS) Capabilities() provider.Capabilities {
	return provider.Capabilities(capabilities)
}

var _ provider.FsProvider = (*FS)(nil)
