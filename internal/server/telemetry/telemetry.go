// Package telemetry records symbols upload events.
package telemetry

import (
	"context"

	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives fire-and-forget pipeline events.
type Sink interface {
	TrackSymbolPackageFailedGalleryValidation(ctx context.Context, id, version string)
	TrackSymbolPackagePush(ctx context.Context, id, version string)
}

// Noop discards all events.
type Noop struct{}

func (Noop) TrackSymbolPackageFailedGalleryValidation(context.Context, string, string) {}
func (Noop) TrackSymbolPackagePush(context.Context, string, string)                    {}

// PromSink counts events in Prometheus and logs each one with the package
// identity. Identity is kept out of the labels to bound cardinality.
type PromSink struct {
	failedValidation prometheus.Counter
	pushes           prometheus.Counter
	logger           logging.Logger
}

func NewPromSink(reg prometheus.Registerer, namespace string, logger logging.Logger) (*PromSink, error) {
	s := &PromSink{
		failedValidation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_failed_gallery_validation_total",
			Help:      "Symbols packages rejected by gallery validation",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_push_total",
			Help:      "Symbols packages accepted for upload",
		}),
		logger: logger.With("module", "telemetry"),
	}
	for _, c := range []prometheus.Collector{s.failedValidation, s.pushes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PromSink) TrackSymbolPackageFailedGalleryValidation(ctx context.Context, id, version string) {
	s.failedValidation.Inc()
	s.logger.Info(ctx, "symbols package failed gallery validation", "event", "SymbolPackageFailedGalleryValidation", "id", id, "version", version)
}

func (s *PromSink) TrackSymbolPackagePush(ctx context.Context, id, version string) {
	s.pushes.Inc()
	s.logger.Info(ctx, "symbols package pushed", "event", "SymbolPackagePush", "id", id, "version", version)
}
