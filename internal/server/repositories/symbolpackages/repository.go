package symbolpackages

import (
	"context"

	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, sp *models.SymbolPackage) error
	UpdateStatus(ctx context.Context, sp *models.SymbolPackage) error
	ListByPackageKey(ctx context.Context, packageKey int64) ([]*models.SymbolPackage, error)
}
