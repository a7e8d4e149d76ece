package packages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/RightsTracker/NuGetGallery/internal/dbx"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/symbolpackages"
)

// PostgresRepository reads packages over a dbx.DBTX.
type PostgresRepository struct {
	db      dbx.DBTX
	symbols symbolpackages.Repository
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, symbols: symbolpackages.NewPostgresRepository(db)}
}

// FindByIDAndVersionStrict loads the package together with all of its symbol
// packages. It returns common.ErrorNotFound when no row matches.
func (r *PostgresRepository) FindByIDAndVersionStrict(ctx context.Context, id, version string) (*models.Package, error) {
	query := ` SELECT key, id, version, normalized_version, status from packages
		WHERE lower(id)=lower($1) and lower(normalized_version)=lower($2)
		`

	var (
		p      models.Package
		status string
	)
	err := r.db.QueryRowContext(ctx, query, id, version).Scan(&p.Key, &p.ID, &p.Version, &p.NormalizedVersion, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select package: %w", err)
	}
	p.Status = models.PackageStatus(status)

	sps, err := r.symbols.ListByPackageKey(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	for _, sp := range sps {
		sp.Package = &p
	}
	p.SymbolPackages = sps

	return &p, nil
}
