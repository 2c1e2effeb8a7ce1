// Package core defines the document archive contract shared by the archive
// drivers. Generated documents (invoice and checklist PDFs) are written
// once under an object key and read back by id through the archive index.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions describes the object being written.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// LinkOptions configures a shareable download link.
type LinkOptions struct {
	Expiry time.Duration // default 15m
}

// DefaultLinkExpiry applies when LinkOptions.Expiry is zero.
const DefaultLinkExpiry = 15 * time.Minute

// Object describes a stored document.
type Object struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the object store behind the document archive. Put is
// create-only: writing an existing key fails with ErrExists.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Object, error)
	Get(ctx context.Context, key string) (Object, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Link(ctx context.Context, key string, opts LinkOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when a driver lacks an optional capability.
	ErrUnsupported = errors.New("archive: unsupported operation")
	// ErrExists is returned by Put when the key is taken.
	ErrExists = errors.New("archive: object already exists")
	// ErrNotFound is returned when the key is absent.
	ErrNotFound = errors.New("archive: object not found")
)

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
