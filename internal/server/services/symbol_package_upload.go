// Package services contains the symbols upload pipeline: validating an
// uploaded archive against its parent package and committing it to the
// database and blob storage.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/RightsTracker/NuGetGallery/internal/dbx"
	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/archive"
	"github.com/RightsTracker/NuGetGallery/internal/server/locks"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/repomanager"
	"github.com/RightsTracker/NuGetGallery/internal/server/storage"
	"github.com/RightsTracker/NuGetGallery/internal/server/symbols"
	"github.com/RightsTracker/NuGetGallery/internal/server/telemetry"
	"github.com/RightsTracker/NuGetGallery/internal/server/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/RightsTracker/NuGetGallery/internal/server/services"

const (
	msgUploadNotAllowed       = "You are not allowed to upload symbols packages."
	msgUnsafeEntry            = "The package contains an entry which is unsafe for extraction: '%s'."
	msgPackageNotFound        = "The package '%s' with version '%s' does not exist. Upload the package before its symbols package."
	msgAlreadyValidating      = "A symbols package for '%s' version '%s' is already being validated. Wait until validation completes."
	msgUploadInProgress       = "Another symbols package for '%s' version '%s' is being uploaded. Try again later."
	msgFailedToReadSymbols    = "Failed to read the symbols package."
	msgInvalidPackageTemplate = "The uploaded package is invalid: %s"
)

// ErrUnexpectedStatus means the validation trigger left the symbols package in
// a status other than Available or Validating.
var ErrUnexpectedStatus = errors.New("unexpected symbols package status after validation trigger")

// PackageStream is an uploaded archive that supports random access and
// rewinding.
type PackageStream interface {
	io.ReaderAt
	io.ReadSeeker
}

// FeatureConfig decides whether a user may upload symbols packages.
type FeatureConfig interface {
	IsSymbolsUploadEnabledForUser(user *models.User) bool
}

// SymbolPackageManager creates and checks symbols packages.
type SymbolPackageManager interface {
	CreateSymbolPackage(pkg *models.Package, metadata models.PackageStreamMetadata) (*models.SymbolPackage, error)
	EnsureValid(ctx context.Context, r *archive.Reader) error
}

// UploadServiceOptions wires the collaborators of SymbolPackageUploadService.
// Locker may be nil.
type UploadServiceOptions struct {
	DB        *sql.DB
	Repos     repomanager.RepositoryManager
	Symbols   SymbolPackageManager
	Trigger   validation.Trigger
	Blobs     storage.BlobStore
	Telemetry telemetry.Sink
	Features  FeatureConfig
	Locker    locks.Locker
	Logger    logging.Logger
}

type SymbolPackageUploadService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	symbols   SymbolPackageManager
	trigger   validation.Trigger
	blobs     storage.BlobStore
	telemetry telemetry.Sink
	features  FeatureConfig
	locker    locks.Locker
	logger    logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewSymbolPackageUploadService(opts UploadServiceOptions) *SymbolPackageUploadService {
	sink := opts.Telemetry
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &SymbolPackageUploadService{
		db:        opts.DB,
		repos:     opts.Repos,
		symbols:   opts.Symbols,
		trigger:   opts.Trigger,
		blobs:     opts.Blobs,
		telemetry: sink,
		features:  opts.Features,
		locker:    opts.Locker,
		logger:    opts.Logger.With("module", "symbols-upload"),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
}

// ValidateUploadedSymbolsPackage checks that stream is a valid symbols package
// for an existing package the user may upload symbols for. It performs no
// writes. On success the result references the parent package.
//
// Expected rejections are returned as results. Errors are returned only for
// failures that are not caused by the upload itself.
func (s *SymbolPackageUploadService) ValidateUploadedSymbolsPackage(ctx context.Context, stream PackageStream, user *models.User) (res *OperationResult, err error) {
	ctx, span := s.tracer.Start(ctx, "symbols.validate")
	defer func() { endSpan(span, res, err) }()

	if !s.features.IsSymbolsUploadEnabledForUser(user) {
		return failedResult(ResultUnauthorized, msgUploadNotAllowed), nil
	}

	size, err := streamSize(stream)
	if err != nil {
		return nil, err
	}

	reader, err := archive.Open(stream, size)
	if err != nil {
		return s.invalidPackage(ctx, err)
	}

	if name, found := reader.FindFutureDatedEntry(s.now()); found {
		s.logger.Warn(ctx, "future dated entry in symbols package", "entry", name)
		return failedResult(ResultBadRequest, fmt.Sprintf(msgUnsafeEntry, name)), nil
	}

	id, version, err := reader.ReadIdentity()
	if err != nil {
		return s.invalidPackage(ctx, err)
	}
	normalized, err := archive.NormalizeVersion(version)
	if err != nil {
		return s.invalidPackage(ctx, fmt.Errorf("%w: %v", archive.ErrInvalidMetadata, err))
	}
	span.SetAttributes(attribute.String("package.id", id), attribute.String("package.version", normalized))

	pkg, err := s.repos.Packages(s.db).FindByIDAndVersionStrict(ctx, id, normalized)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "package lookup failed", "id", id, "version", normalized, "error", err)
		return nil, fmt.Errorf("find package %s %s: %w", id, normalized, err)
	}
	if pkg == nil || pkg.IsDeleted() {
		return failedResult(ResultNotFound, fmt.Sprintf(msgPackageNotFound, id, normalized)), nil
	}

	if pkg.HasValidatingSymbolPackage() {
		return failedResult(ResultConflict, fmt.Sprintf(msgAlreadyValidating, pkg.ID, pkg.NormalizedVersion)), nil
	}

	if err := s.symbols.EnsureValid(ctx, reader); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn(ctx, "symbols package failed validation", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)

		message := msgFailedToReadSymbols
		if ve, ok := symbols.AsValidationError(err); ok {
			message = ve.Message
		}
		s.telemetry.TrackSymbolPackageFailedGalleryValidation(ctx, pkg.ID, pkg.NormalizedVersion)
		return failedResult(ResultBadRequest, message), nil
	}

	return okResult(pkg), nil
}

// CreateAndUploadSymbolsPackage creates a symbols package for pkg from stream,
// starts its validation, stores the binary and commits the records. The caller
// must have validated the same stream with ValidateUploadedSymbolsPackage.
//
// A blob collision is reported as Conflict. Commit failures and an unexpected
// status after the validation trigger are returned as errors; in the commit
// case the blob written by this call is removed first. Whenever the upload is
// abandoned a queued validation request is canceled and pkg is left as it was.
//
// The Available path is not safe against concurrent uploads for the same
// package unless a Locker is configured.
func (s *SymbolPackageUploadService) CreateAndUploadSymbolsPackage(ctx context.Context, pkg *models.Package, stream io.ReadSeeker) (res *OperationResult, err error) {
	ctx, span := s.tracer.Start(ctx, "symbols.create_and_upload", trace.WithAttributes(
		attribute.String("package.id", pkg.ID),
		attribute.String("package.version", pkg.NormalizedVersion),
	))
	defer func() { endSpan(span, res, err) }()

	comp := &dbx.Compensations{}
	state := capturePackageState(pkg)
	defer func() {
		if res != nil && res.Code == ResultCreated {
			return
		}
		if cerr := comp.Run(context.WithoutCancel(ctx)); cerr != nil {
			s.logger.Error(ctx, "failed to undo abandoned upload", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", cerr)
		}
		state.restore()
	}()

	metadata, err := ComputeStreamMetadata(stream)
	if err != nil {
		return nil, err
	}

	sp, err := s.symbols.CreateSymbolPackage(pkg, metadata)
	if err != nil {
		return nil, err
	}

	if err := s.trigger.StartValidation(ctx, sp); err != nil {
		s.logger.Error(ctx, "failed to start validation", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
		return nil, fmt.Errorf("start validation: %w", err)
	}
	span.SetAttributes(attribute.String("symbols.status", string(sp.Status)))

	if canceler, ok := s.trigger.(validation.Canceler); ok {
		comp.Add(func(ctx context.Context) error {
			if err := canceler.CancelValidation(ctx, sp); err != nil {
				s.logger.Error(ctx, "failed to cancel validation", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
				return err
			}
			return nil
		})
	}

	var removeBlob func(ctx context.Context) error

	switch sp.Status {
	case models.PackageStatusValidating:
		err = s.blobs.SaveValidationFile(ctx, pkg.ID, pkg.NormalizedVersion, stream)
		removeBlob = func(ctx context.Context) error {
			return s.blobs.DeleteValidationFile(ctx, pkg.ID, pkg.NormalizedVersion)
		}

	case models.PackageStatusAvailable:
		if s.locker != nil {
			release, busy, lerr := s.lockPackage(ctx, pkg, sp)
			if lerr != nil || busy != nil {
				return busy, lerr
			}
			defer func() {
				if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
					s.logger.Warn(ctx, "failed to release package lock", "id", pkg.ID, "error", rerr)
				}
			}()
		}

		if sp.Published == nil {
			published := s.now().UTC()
			sp.Published = &published
		}
		overwrite := false
		for _, other := range pkg.SymbolPackagesWithStatus(models.PackageStatusAvailable) {
			if other == sp {
				continue
			}
			other.Status = models.PackageStatusDeleted
			overwrite = true
		}
		err = s.blobs.SavePublicFile(ctx, pkg.ID, pkg.NormalizedVersion, stream, overwrite)
		removeBlob = func(ctx context.Context) error {
			return s.blobs.DeletePublicFile(ctx, pkg.ID, pkg.NormalizedVersion)
		}

	default:
		s.logger.Error(ctx, "validation trigger left an unexpected status", "id", pkg.ID, "version", pkg.NormalizedVersion, "status", sp.Status)
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedStatus, sp.Status)
	}

	if err != nil {
		if errors.Is(err, common.ErrBlobAlreadyExists) {
			s.logger.Warn(ctx, "symbols blob already exists", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
			return failedResult(ResultConflict, fmt.Sprintf(msgAlreadyValidating, pkg.ID, pkg.NormalizedVersion)), nil
		}
		s.logger.Error(ctx, "failed to store symbols blob", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
		return nil, fmt.Errorf("store symbols package: %w", err)
	}

	comp.Add(func(ctx context.Context) error {
		if err := removeBlob(ctx); err != nil {
			s.logger.Error(ctx, "failed to remove symbols blob after commit failure", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
			return err
		}
		return nil
	})

	var changed []*models.SymbolPackage
	for _, other := range pkg.SymbolPackages {
		if other != sp && other.StatusChanged() {
			changed = append(changed, other)
		}
	}

	err = dbx.WithTxCompensated(ctx, s.db, nil, comp, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.SymbolPackages(tx)
		if err := repo.Create(ctx, sp); err != nil {
			return err
		}
		for _, other := range changed {
			if err := repo.UpdateStatus(ctx, other); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "failed to commit symbols package", "id", pkg.ID, "version", pkg.NormalizedVersion, "error", err)
		return nil, fmt.Errorf("commit symbols package: %w", err)
	}

	sp.MarkLoaded()
	for _, other := range changed {
		other.MarkLoaded()
	}

	s.telemetry.TrackSymbolPackagePush(ctx, pkg.ID, pkg.NormalizedVersion)
	return createdResult(pkg), nil
}

// lockPackage serializes the Available path per package and reloads the
// sibling records under the lock. A non-nil result means the lock is held
// elsewhere.
func (s *SymbolPackageUploadService) lockPackage(ctx context.Context, pkg *models.Package, sp *models.SymbolPackage) (locks.ReleaseFunc, *OperationResult, error) {
	release, ok, err := s.locker.Acquire(ctx, pkg.LowerID()+"/"+pkg.NormalizedVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("lock package: %w", err)
	}
	if !ok {
		s.logger.Warn(ctx, "package lock is held", "id", pkg.ID, "version", pkg.NormalizedVersion)
		return nil, failedResult(ResultConflict, fmt.Sprintf(msgUploadInProgress, pkg.ID, pkg.NormalizedVersion)), nil
	}

	siblings, err := s.repos.SymbolPackages(s.db).ListByPackageKey(ctx, pkg.Key)
	if err != nil {
		_ = release(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("reload symbols packages: %w", err)
	}
	for _, sibling := range siblings {
		sibling.Package = pkg
	}
	pkg.SymbolPackages = append(siblings, sp)
	return release, nil, nil
}

// packageState is the in-memory view of a package before an upload changed it.
type packageState struct {
	pkg      *models.Package
	siblings []*models.SymbolPackage
	statuses []models.PackageStatus
}

func capturePackageState(pkg *models.Package) packageState {
	st := packageState{pkg: pkg, siblings: slices.Clone(pkg.SymbolPackages)}
	for _, sp := range st.siblings {
		st.statuses = append(st.statuses, sp.Status)
	}
	return st
}

// restore detaches records added since the capture and puts sibling statuses
// back, so a rejected or rolled back upload leaves the package as it was.
func (st packageState) restore() {
	for _, sp := range st.pkg.SymbolPackages {
		if sp.IsNew() && !slices.Contains(st.siblings, sp) {
			sp.Key = 0
		}
	}
	st.pkg.SymbolPackages = st.siblings
	for i, sp := range st.siblings {
		sp.Status = st.statuses[i]
	}
}

// invalidPackage maps archive and manifest errors to BadRequest. Any other
// error is returned unchanged.
func (s *SymbolPackageUploadService) invalidPackage(ctx context.Context, err error) (*OperationResult, error) {
	s.logger.Warn(ctx, "invalid symbols package", "error", err)

	_, isValidation := symbols.AsValidationError(err)
	if errors.Is(err, archive.ErrInvalidArchive) || errors.Is(err, archive.ErrInvalidMetadata) || isValidation {
		return failedResult(ResultBadRequest, fmt.Sprintf(msgInvalidPackageTemplate, err.Error())), nil
	}
	return nil, err
}

func endSpan(span trace.Span, res *OperationResult, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res != nil:
		span.SetAttributes(attribute.String("result.code", res.Code.String()))
	}
	span.End()
}
