// Package storage persists symbols package binaries to blob storage.
//
// Two logical containers are used: a validation container holding at most one
// pending upload per package, and the public container serving the current
// symbols package.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/RightsTracker/NuGetGallery/internal/common"
)

// BlobStore is the storage contract the upload pipeline depends on.
//
// SaveValidationFile never overwrites. SavePublicFile overwrites only when asked
// to. Both fail with common.ErrBlobAlreadyExists on a collision.
type BlobStore interface {
	SaveValidationFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker) error
	SavePublicFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker, overwrite bool) error
	DeleteValidationFile(ctx context.Context, id, normalizedVersion string) error
	DeletePublicFile(ctx context.Context, id, normalizedVersion string) error
}

// FileName returns the blob name of a symbols package.
func FileName(id, normalizedVersion string) string {
	return strings.ToLower(id) + "." + strings.ToLower(normalizedVersion) + common.SymbolsPackageExtension
}
