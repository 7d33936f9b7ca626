// Package storage defines the object store the archive writes generation
// records and golden-record datasets into.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const (
	ContentTypeJSON    = "application/json"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore keys are relative to the store's own prefix. Delete of a
// missing key is not an error.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// PutBytes uploads an in-memory payload with a known size.
func PutBytes(ctx context.Context, store ObjectStore, key string, body []byte, contentType string) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), PutOptions{ContentType: contentType})
}
