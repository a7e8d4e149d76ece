package packages

import (
	"context"

	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

type Repository interface {
	// FindByIDAndVersionStrict returns the package whose id matches
	// case-insensitively and whose normalized version equals version exactly.
	// No "latest" or range resolution takes place.
	FindByIDAndVersionStrict(ctx context.Context, id, version string) (*models.Package, error)
}
