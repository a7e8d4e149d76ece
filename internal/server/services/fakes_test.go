package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RightsTracker/NuGetGallery/internal/dbx"
	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/archive"
	"github.com/RightsTracker/NuGetGallery/internal/server/features"
	"github.com/RightsTracker/NuGetGallery/internal/server/locks"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/packages"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/repomanager"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/symbolpackages"
	"github.com/RightsTracker/NuGetGallery/internal/server/storage"
)

// -------- test fakes --------

type fakePackagesRepo struct {
	packages.Repository
	pkg   *models.Package
	err   error
	calls int
	gotID string
	gotV  string
}

func (f *fakePackagesRepo) FindByIDAndVersionStrict(ctx context.Context, id, version string) (*models.Package, error) {
	f.calls++
	f.gotID, f.gotV = id, version
	if f.err != nil {
		return nil, f.err
	}
	return f.pkg, nil
}

type fakeSymbolPackagesRepo struct {
	symbolpackages.Repository
	created   []*models.SymbolPackage
	updated   []*models.SymbolPackage
	createErr error
	updateErr error
	list      []*models.SymbolPackage
	listErr   error
	nextKey   int64
}

func (f *fakeSymbolPackagesRepo) Create(ctx context.Context, sp *models.SymbolPackage) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextKey++
	sp.Key = 100 + f.nextKey
	f.created = append(f.created, sp)
	return nil
}

func (f *fakeSymbolPackagesRepo) UpdateStatus(ctx context.Context, sp *models.SymbolPackage) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, sp)
	return nil
}

func (f *fakeSymbolPackagesRepo) ListByPackageKey(ctx context.Context, packageKey int64) ([]*models.SymbolPackage, error) {
	return f.list, f.listErr
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	p *fakePackagesRepo
	s *fakeSymbolPackagesRepo
}

func (m *fakeRepoManager) Packages(db dbx.DBTX) packages.Repository             { return m.p }
func (m *fakeRepoManager) SymbolPackages(db dbx.DBTX) symbolpackages.Repository { return m.s }

type fakeChecker struct {
	err   error
	calls int
}

func (f *fakeChecker) EnsureValid(ctx context.Context, r *archive.Reader) error {
	f.calls++
	return f.err
}

type fakeTrigger struct {
	status models.PackageStatus
	err    error
	calls  int
}

func (f *fakeTrigger) StartValidation(ctx context.Context, sp *models.SymbolPackage) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	sp.Status = f.status
	return nil
}

// fakeQueueTrigger behaves like the asynchronous trigger: it hands out a
// validation id and records cancellations.
type fakeQueueTrigger struct {
	fakeTrigger
	canceled  []string
	cancelErr error
}

func (f *fakeQueueTrigger) StartValidation(ctx context.Context, sp *models.SymbolPackage) error {
	if err := f.fakeTrigger.StartValidation(ctx, sp); err != nil {
		return err
	}
	sp.ValidationID = "validation-1"
	return nil
}

func (f *fakeQueueTrigger) CancelValidation(ctx context.Context, sp *models.SymbolPackage) error {
	f.canceled = append(f.canceled, sp.ValidationID)
	return f.cancelErr
}

type event struct {
	kind, id, version string
}

type fakeTelemetry struct {
	events []event
}

func (f *fakeTelemetry) TrackSymbolPackageFailedGalleryValidation(ctx context.Context, id, version string) {
	f.events = append(f.events, event{"failed", id, version})
}

func (f *fakeTelemetry) TrackSymbolPackagePush(ctx context.Context, id, version string) {
	f.events = append(f.events, event{"push", id, version})
}

// fakeBlobStore wraps the in-memory store to inject failures and count deletes.
type fakeBlobStore struct {
	*storage.MemoryBlobStore
	saveErr           error
	deleteErr         error
	validationDeletes int
	publicDeletes     int
	lastOverwrite     *bool
}

func (f *fakeBlobStore) SaveValidationFile(ctx context.Context, id, v string, body io.ReadSeeker) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBlobStore.SaveValidationFile(ctx, id, v, body)
}

func (f *fakeBlobStore) SavePublicFile(ctx context.Context, id, v string, body io.ReadSeeker, overwrite bool) error {
	f.lastOverwrite = &overwrite
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBlobStore.SavePublicFile(ctx, id, v, body, overwrite)
}

func (f *fakeBlobStore) DeleteValidationFile(ctx context.Context, id, v string) error {
	f.validationDeletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryBlobStore.DeleteValidationFile(ctx, id, v)
}

func (f *fakeBlobStore) DeletePublicFile(ctx context.Context, id, v string) error {
	f.publicDeletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryBlobStore.DeletePublicFile(ctx, id, v)
}

type fakeLocker struct {
	busy     bool
	err      error
	acquired []string
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, resource string) (locks.ReleaseFunc, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.busy {
		return nil, false, nil
	}
	f.acquired = append(f.acquired, resource)
	return func(context.Context) error {
		f.released++
		return nil
	}, true, nil
}

var errBoom = errors.New("boom")

// -------- helpers --------

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	svc       *SymbolPackageUploadService
	mock      sqlmock.Sqlmock
	db        *sql.DB
	pkgs      *fakePackagesRepo
	sps       *fakeSymbolPackagesRepo
	checker   *fakeChecker
	trigger   *fakeTrigger
	blobs     *fakeBlobStore
	telemetry *fakeTelemetry
}

func newHarness(t *testing.T, pkg *models.Package) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		mock:      mock,
		db:        db,
		pkgs:      &fakePackagesRepo{pkg: pkg},
		sps:       &fakeSymbolPackagesRepo{},
		checker:   &fakeChecker{},
		trigger:   &fakeTrigger{status: models.PackageStatusValidating},
		blobs:     &fakeBlobStore{MemoryBlobStore: storage.NewMemoryBlobStore()},
		telemetry: &fakeTelemetry{},
	}

	symbolsSvc := NewSymbolPackageService(h.checker)
	symbolsSvc.now = func() time.Time { return fixedNow }

	h.svc = NewSymbolPackageUploadService(UploadServiceOptions{
		DB:        db,
		Repos:     &fakeRepoManager{p: h.pkgs, s: h.sps},
		Symbols:   symbolsSvc,
		Trigger:   h.trigger,
		Blobs:     h.blobs,
		Telemetry: h.telemetry,
		Features:  features.NewConfig(true, nil),
		Logger:    logging.NewNopLogger(),
	})
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func newPackage(siblings ...models.PackageStatus) *models.Package {
	pkg := &models.Package{
		Key:               7,
		ID:                "Contoso.Utils",
		Version:           "1.0",
		NormalizedVersion: "1.0.0",
		Status:            models.PackageStatusAvailable,
	}
	for i, st := range siblings {
		sp := &models.SymbolPackage{Key: int64(i + 1), PackageKey: pkg.Key, Package: pkg, Status: st}
		sp.MarkLoaded()
		pkg.SymbolPackages = append(pkg.SymbolPackages, sp)
	}
	return pkg
}

var testUser = &models.User{ID: "u1", Username: "alice"}

func stream(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
