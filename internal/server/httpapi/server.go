// Package httpapi exposes the symbols upload pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/RightsTracker/NuGetGallery/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Uploader is the pipeline the upload endpoint drives.
type Uploader interface {
	ValidateUploadedSymbolsPackage(ctx context.Context, stream services.PackageStream, user *models.User) (*services.OperationResult, error)
	CreateAndUploadSymbolsPackage(ctx context.Context, pkg *models.Package, stream io.ReadSeeker) (*services.OperationResult, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Address        string
	SecretKey      string
	SpoolDir       string
	MaxUploadBytes int64
	Gatherer       prometheus.Gatherer
	Health         Pinger
}

type Server struct {
	address        string
	uploader       Uploader
	logger         logging.Logger
	jwtSecret      []byte
	spoolDir       string
	maxUploadBytes int64
	gatherer       prometheus.Gatherer
	health         Pinger
}

func NewServer(opts Options, uploader Uploader, l logging.Logger) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		address:        opts.Address,
		uploader:       uploader,
		logger:         l.With("module", "http_server"),
		jwtSecret:      []byte(opts.SecretKey),
		spoolDir:       opts.SpoolDir,
		maxUploadBytes: opts.MaxUploadBytes,
		gatherer:       gatherer,
		health:         opts.Health,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("PUT /api/v2/symbolpackage", s.requireToken(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return withRequestContext(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.PingContext(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeMessage(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ok")
}

type response struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Message: msg})
}
