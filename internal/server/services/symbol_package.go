package services

import (
	"context"
	"errors"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/server/archive"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

// SymbolsChecker validates the content of a symbols package archive.
type SymbolsChecker interface {
	EnsureValid(ctx context.Context, r *archive.Reader) error
}

// SymbolPackageService owns the creation of SymbolPackage records.
type SymbolPackageService struct {
	checker SymbolsChecker
	now     func() time.Time
}

func NewSymbolPackageService(checker SymbolsChecker) *SymbolPackageService {
	return &SymbolPackageService{checker: checker, now: time.Now}
}

// CreateSymbolPackage builds a new record for pkg from the stream metadata and
// attaches it to pkg. Nothing is persisted.
func (s *SymbolPackageService) CreateSymbolPackage(pkg *models.Package, metadata models.PackageStreamMetadata) (*models.SymbolPackage, error) {
	if pkg == nil {
		return nil, errors.New("package is required")
	}
	if metadata.Hash == "" || metadata.HashAlgorithm == "" {
		return nil, errors.New("stream metadata has no hash")
	}

	sp := &models.SymbolPackage{
		PackageKey:    pkg.Key,
		Package:       pkg,
		Created:       s.now().UTC(),
		HashAlgorithm: metadata.HashAlgorithm,
		Hash:          metadata.Hash,
		Size:          metadata.Size,
	}
	pkg.SymbolPackages = append(pkg.SymbolPackages, sp)
	return sp, nil
}

// EnsureValid runs the symbols package content checks.
func (s *SymbolPackageService) EnsureValid(ctx context.Context, r *archive.Reader) error {
	return s.checker.EnsureValid(ctx, r)
}
