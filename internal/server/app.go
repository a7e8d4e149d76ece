// Package server wires the symbols gallery: database and migrations, blob
// storage, the validation trigger, the optional package lock, metrics,
// tracing and the HTTP API, and runs it until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/RightsTracker/NuGetGallery/internal/filex"
	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/config"
	"github.com/RightsTracker/NuGetGallery/internal/server/features"
	"github.com/RightsTracker/NuGetGallery/internal/server/httpapi"
	"github.com/RightsTracker/NuGetGallery/internal/server/locks"
	"github.com/RightsTracker/NuGetGallery/internal/server/repositories/repomanager"
	"github.com/RightsTracker/NuGetGallery/internal/server/services"
	"github.com/RightsTracker/NuGetGallery/internal/server/storage"
	"github.com/RightsTracker/NuGetGallery/internal/server/symbols"
	"github.com/RightsTracker/NuGetGallery/internal/server/telemetry"
	"github.com/RightsTracker/NuGetGallery/internal/server/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "symbols-gallery"

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	server  *httpapi.Server
	closers []func(context.Context) error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	shutdownTracing, err := setupTracing(ctx, serviceName, c.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}
	app.closers = append(app.closers, shutdownTracing)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	app.db = db
	app.closers = append(app.closers, func(context.Context) error { return db.Close() })

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	s3client, err := storage.NewS3Client(ctx, storage.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	blobs := storage.NewS3BlobStore(s3client, c.S3ValidationBucket, c.S3PublicBucket)

	trigger, err := app.buildTrigger()
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	locker, err := app.buildLocker(ctx)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	reg := newRegistry()
	sink, err := telemetry.NewPromSink(reg, c.MetricsNamespace, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	uploads := services.NewSymbolPackageUploadService(services.UploadServiceOptions{
		DB:        db,
		Repos:     rm,
		Symbols:   services.NewSymbolPackageService(symbols.NewChecker()),
		Trigger:   trigger,
		Blobs:     blobs,
		Telemetry: sink,
		Features:  features.NewConfig(c.SymbolsUploadEnabledForAll, c.SymbolsUploadAllowList),
		Locker:    locker,
		Logger:    logger,
	})

	spoolDir, err := resolveSpoolDir(c.SpoolDir)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	app.server = httpapi.NewServer(httpapi.Options{
		Address:        c.EndpointAddrHTTP,
		SecretKey:      c.SecretKey,
		SpoolDir:       spoolDir,
		MaxUploadBytes: c.MaxUploadSize,
		Gatherer:       reg,
		Health:         db,
	}, uploads, logger)

	return app, nil
}

// buildTrigger picks the asynchronous NATS trigger or immediate approval.
func (app *App) buildTrigger() (validation.Trigger, error) {
	if !app.config.AsyncValidation {
		app.logger.Warn(context.Background(), "asynchronous validation is disabled; symbols packages are published immediately")
		return validation.NewSyncTrigger(), nil
	}

	nc, err := validation.ConnectNATS(app.config.NatsURL, app.logger)
	if err != nil {
		return nil, fmt.Errorf("nats init error: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return nc.Drain() })
	return validation.NewAsyncTrigger(nc, app.config.ValidationSubject, app.logger), nil
}

// buildLocker returns nil unless a Redis URL is configured.
func (app *App) buildLocker(ctx context.Context) (locks.Locker, error) {
	if app.config.RedisURL == "" {
		return nil, nil
	}
	client, err := locks.NewRedisClient(ctx, app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return client.Close() })
	return locks.NewRedisLocker(client, app.config.LockTTL), nil
}

// resolveSpoolDir creates a relative spool directory under the working
// directory. Empty means the system temp dir.
func resolveSpoolDir(dir string) (string, error) {
	if dir == "" || filepath.IsAbs(dir) {
		return dir, nil
	}
	abs, err := filex.EnsureSubdDir(dir)
	if err != nil {
		return "", fmt.Errorf("spool dir error: %w", err)
	}
	return abs, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// close releases resources in reverse acquisition order.
func (app *App) close(ctx context.Context) {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "async_validation", app.config.AsyncValidation, "lock", app.config.RedisURL != "")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
