// Package s3 stores archive objects in an S3-compatible bucket through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querywright/querywright/internal/config"
	"github.com/querywright/querywright/internal/storage"
)

// backend is the slice of the bucket API the store needs. Keys passed to it
// are fully scoped.
type backend interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

type Store struct {
	backend backend
	bucket  string
	space   keyspace
}

// New connects to the archive bucket, creating it when configured to.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	endpoint, opts, err := minioOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	store, err := newStore(bucket, cfg.Prefix, minioBackend{client: client})
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket, prefix string, b backend) (*Store, error) {
	if b == nil {
		return nil, fmt.Errorf("archive backend is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	return &Store{backend: b, bucket: strings.TrimSpace(bucket), space: newKeyspace(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	scoped, err := s.space.scope(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.backend.PutObject(ctx, s.bucket, scoped, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s: %w", scoped, err)
	}
	info.Key = s.space.unscope(info.Key, key)
	if info.ContentType == "" {
		info.ContentType = opts.ContentType
	}
	return info, nil
}

// Open returns the object body with its metadata. The caller closes the body.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	scoped, err := s.space.scope(key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	body, info, err := s.backend.GetObject(ctx, s.bucket, scoped)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s: %w", key, storage.ErrObjectNotFound)
	case err != nil:
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s: %w", scoped, err)
	}
	info.Key = key
	return body, info, nil
}

// List returns objects under prefix sorted by key, with store-relative keys.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	scoped, err := s.space.scopePrefix(prefix)
	if err != nil {
		return nil, err
	}
	objects, err := s.backend.ListObjects(ctx, s.bucket, scoped)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scoped, err)
	}
	for i := range objects {
		objects[i].Key = s.space.unscope(objects[i].Key, objects[i].Key)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	scoped, err := s.space.scope(key)
	if err != nil {
		return err
	}
	err = s.backend.RemoveObject(ctx, s.bucket, scoped)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("remove %s: %w", scoped, err)
	}
	return nil
}

// HealthCheck fails when the bucket is unreachable or missing.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.backend.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	if err := s.HealthCheck(ctx); err == nil {
		return nil
	}
	if err := s.backend.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// keyspace maps store-relative keys into the configured bucket prefix.
type keyspace struct {
	root string
}

func newKeyspace(prefix string) keyspace {
	root := path.Clean("/" + strings.TrimSpace(prefix))
	return keyspace{root: strings.TrimPrefix(root, "/")}
}

func (k keyspace) scope(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	// A rooted Clean silently drops leading "..", so reject them first.
	if strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(k.root, cleaned[1:]), nil
}

func (k keyspace) scopePrefix(prefix string) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		if k.root == "" {
			return "", nil
		}
		return k.root + "/", nil
	}
	scoped, err := k.scope(prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(prefix, "/") {
		scoped += "/"
	}
	return scoped, nil
}

func (k keyspace) unscope(scoped, fallback string) string {
	if scoped == "" {
		return fallback
	}
	if k.root == "" {
		return scoped
	}
	return strings.TrimPrefix(scoped, k.root+"/")
}

func minioOptions(cfg config.ArchiveConfig) (string, *minio.Options, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return "", nil, fmt.Errorf("archive endpoint is required")
	}
	endpoint, secure := raw, cfg.UseSSL
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", nil, fmt.Errorf("parse archive endpoint: %w", err)
		}
		if parsed.Host == "" {
			return "", nil, fmt.Errorf("archive endpoint %q has no host", raw)
		}
		endpoint = parsed.Host
		secure = secure || parsed.Scheme == "https"
	}
	return endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	}, nil
}

type minioBackend struct {
	client *minio.Client
}

func (m minioBackend) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translateError(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag, ContentType: contentType}, nil
}

func (m minioBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, translateError(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the body is read.
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, storage.ObjectInfo{}, translateError(err)
	}
	return object, objectInfo(stat), nil
}

func (m minioBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	for object := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, translateError(object.Err)
		}
		objects = append(objects, objectInfo(object))
	}
	return objects, nil
}

func (m minioBackend) RemoveObject(ctx context.Context, bucket, key string) error {
	return translateError(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m minioBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	return exists, translateError(err)
}

func (m minioBackend) MakeBucket(ctx context.Context, bucket, region string) error {
	return translateError(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(object minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          object.Key,
		Size:         object.Size,
		ETag:         object.ETag,
		ContentType:  object.ContentType,
		LastModified: object.LastModified,
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
