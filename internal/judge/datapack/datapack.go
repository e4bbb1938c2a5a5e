// Package datapack resolves problem object keys (submission sources,
// test inputs, expected outputs, grader sources) to host-local files
// the workspace can stage from. Deployments with an s3fs mount serve
// straight out of the mounted tree; without one, objects are pulled
// from object storage into a verified local cache.
package datapack

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"treadmill/pkg/errors"
)

// Provider resolves an object key to a readable host path.
type Provider interface {
	EnsureObject(ctx context.Context, objectKey string) (string, error)
}

// S3FS serves objects from a pre-mounted s3fs tree.
type S3FS struct {
	root string
}

// NewS3FS creates a provider rooted at the s3fs mount point.
func NewS3FS(root string) *S3FS {
	return &S3FS{root: root}
}

func (p *S3FS) EnsureObject(_ context.Context, objectKey string) (string, error) {
	rel, err := sanitizeKey(objectKey)
	if err != nil {
		return "", err
	}
	hostPath := filepath.Join(p.root, rel)
	if _, err := os.Stat(hostPath); err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "object %s not in s3fs mount", objectKey)
	}
	return hostPath, nil
}

// Fallback tries providers in order, returning the first hit.
type Fallback struct {
	primary   Provider
	secondary Provider
}

// NewFallback chains two providers; the second one is consulted only
// when the first cannot produce the object.
func NewFallback(primary, secondary Provider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (p *Fallback) EnsureObject(ctx context.Context, objectKey string) (string, error) {
	hostPath, err := p.primary.EnsureObject(ctx, objectKey)
	if err == nil {
		return hostPath, nil
	}
	if p.secondary == nil {
		return "", err
	}
	return p.secondary.EnsureObject(ctx, objectKey)
}

// sanitizeKey rejects keys that would escape the provider root.
func sanitizeKey(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.PreconditionError("empty object key")
	}
	clean := path.Clean(objectKey)
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.PreconditionError("object key %q escapes the root", objectKey)
	}
	return filepath.FromSlash(clean), nil
}
