// Package objstore provides the document store used to publish catalog
// documents and derived assets under deterministic keys.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrMissingCredentials marks failures caused by absent store credentials.
	// They are never retried.
	ErrMissingCredentials = errors.New("missing store credentials")
)

// ContentTypeJSON is used for every document write.
const ContentTypeJSON = "application/json"

// Presence is the outcome of an existence probe.
type Presence int

const (
	// ProbeFailed means the store could not answer; the accompanying error
	// must not be read as absence.
	ProbeFailed Presence = iota
	Exists
	NotFound
)

func (p Presence) String() string {
	switch p {
	case Exists:
		return "exists"
	case NotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Object describes one listed key.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a flat key/value object store.
type Store interface {
	// Probe reports whether key exists. A Presence of ProbeFailed is always
	// returned together with a non-nil error.
	Probe(ctx context.Context, key string) (Presence, error)

	// Get returns the object body or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	Put(ctx context.Context, key string, data []byte, contentType string) error

	// UploadFile writes the contents of a local file to key.
	UploadFile(ctx context.Context, path, key, contentType string) error

	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)

	Delete(ctx context.Context, key string) error

	// URL returns the public href of key.
	URL(key string) string

	// Bucket names the store in logs and errors.
	Bucket() string
}

// KeyExists wraps Probe for callers that only need a bool.
func KeyExists(ctx context.Context, s Store, key string) (bool, error) {
	presence, err := s.Probe(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe s3://%s/%s: %w", s.Bucket(), key, err)
	}
	return presence == Exists, nil
}
