package repomanager

import (
	"context"
	"database/sql"

	"github.com/RightsTracker/NuGetGallery/internal/dbx"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/packages"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/symbolpackages"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Packages(db dbx.DBTX) packages.Repository
	SymbolPackages(db dbx.DBTX) symbolpackages.Repository
}
