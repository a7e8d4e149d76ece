package symbolpackages

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RightsTracker/NuGetGallery/internal/dbx"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

// PostgresRepository implements symbol package storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new symbol package row and stores the generated key on sp.
// The caller marks sp loaded once the surrounding transaction commits.
func (r *PostgresRepository) Create(ctx context.Context, sp *models.SymbolPackage) error {
	if sp.Package != nil && sp.PackageKey == 0 {
		sp.PackageKey = sp.Package.Key
	}

	query := `
		INSERT INTO symbol_packages (package_key, status, created, published, hash_algorithm, hash, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING key
	`
	err := r.db.QueryRowContext(ctx, query,
		sp.PackageKey, string(sp.Status), sp.Created, sp.Published, sp.HashAlgorithm, sp.Hash, sp.Size).
		Scan(&sp.Key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateStatus writes the status and publish timestamp of an existing row.
// Exactly one row must be affected. As with Create, the record is not marked
// persisted here.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, sp *models.SymbolPackage) error {
	query := `update symbol_packages set status=$1, published=$2 where key=$3`
	res, err := r.db.ExecContext(ctx, query, string(sp.Status), sp.Published, sp.Key)
	if err != nil {
		return fmt.Errorf("failed to update symbol package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// ListByPackageKey returns every symbol package of a package, oldest first.
func (r *PostgresRepository) ListByPackageKey(ctx context.Context, packageKey int64) ([]*models.SymbolPackage, error) {
	query := ` SELECT key, package_key, status, created, published, hash_algorithm, hash, size from symbol_packages
		WHERE package_key=$1 ORDER BY key
		`
	rows, err := r.db.QueryContext(ctx, query, packageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select symbol packages: %w", err)
	}
	defer rows.Close()

	var result []*models.SymbolPackage
	for rows.Next() {
		var (
			item      models.SymbolPackage
			status    string
			published sql.NullTime
		)
		if err := rows.Scan(&item.Key, &item.PackageKey, &status, &item.Created, &published,
			&item.HashAlgorithm, &item.Hash, &item.Size); err != nil {
			return nil, err
		}
		item.Status = models.PackageStatus(status)
		if published.Valid {
			t := published.Time
			item.Published = &t
		}
		item.MarkLoaded()
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
