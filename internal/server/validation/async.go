package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/logging"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject validation requests are published on.
const DefaultSubject = "symbols.validation.start"

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StartSymbolValidation is the message consumed by the validation workers.
// The row key is not known yet when the message is sent, so workers match on
// package identity and ValidationID.
type StartSymbolValidation struct {
	ValidationID      string    `json:"validation_id"`
	PackageID         string    `json:"package_id"`
	NormalizedVersion string    `json:"normalized_version"`
	HashAlgorithm     string    `json:"hash_algorithm"`
	Hash              string    `json:"hash"`
	Size              int64     `json:"size"`
	RequestedAt       time.Time `json:"requested_at"`
}

// CancelSymbolValidation withdraws a StartSymbolValidation with the same
// ValidationID. It is published on the start subject suffixed with ".cancel".
type CancelSymbolValidation struct {
	ValidationID      string    `json:"validation_id"`
	PackageID         string    `json:"package_id"`
	NormalizedVersion string    `json:"normalized_version"`
	Hash              string    `json:"hash"`
	CanceledAt        time.Time `json:"canceled_at"`
}

// AsyncTrigger marks the symbols package Validating and enqueues a validation
// request.
type AsyncTrigger struct {
	pub     Publisher
	subject string
	logger  logging.Logger
	now     func() time.Time
}

func NewAsyncTrigger(pub Publisher, subject string, logger logging.Logger) *AsyncTrigger {
	if subject == "" {
		subject = DefaultSubject
	}
	return &AsyncTrigger{
		pub:     pub,
		subject: subject,
		logger:  logger.With("module", "validation"),
		now:     time.Now,
	}
}

func (t *AsyncTrigger) StartValidation(ctx context.Context, sp *models.SymbolPackage) error {
	if sp.Package == nil {
		return fmt.Errorf("symbol package has no parent package")
	}

	msg := StartSymbolValidation{
		ValidationID:      uuid.NewString(),
		PackageID:         sp.Package.ID,
		NormalizedVersion: sp.Package.NormalizedVersion,
		HashAlgorithm:     sp.HashAlgorithm,
		Hash:              sp.Hash,
		Size:              sp.Size,
		RequestedAt:       t.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := t.pub.Publish(t.subject, data); err != nil {
		return fmt.Errorf("enqueue validation: %w", err)
	}

	sp.Status = models.PackageStatusValidating
	sp.ValidationID = msg.ValidationID
	t.logger.Info(ctx, "validation enqueued",
		"id", msg.PackageID, "version", msg.NormalizedVersion, "validation_id", msg.ValidationID)
	return nil
}

// CancelValidation publishes a cancel for the request StartValidation sent for
// sp. It does nothing when no request was sent.
func (t *AsyncTrigger) CancelValidation(ctx context.Context, sp *models.SymbolPackage) error {
	if sp.ValidationID == "" || sp.Package == nil {
		return nil
	}

	msg := CancelSymbolValidation{
		ValidationID:      sp.ValidationID,
		PackageID:         sp.Package.ID,
		NormalizedVersion: sp.Package.NormalizedVersion,
		Hash:              sp.Hash,
		CanceledAt:        t.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := t.pub.Publish(t.subject+".cancel", data); err != nil {
		return fmt.Errorf("cancel validation: %w", err)
	}

	t.logger.Info(ctx, "validation canceled",
		"id", msg.PackageID, "version", msg.NormalizedVersion, "validation_id", msg.ValidationID)
	sp.ValidationID = ""
	return nil
}

// ConnectNATS dials the validation bus.
func ConnectNATS(url string, logger logging.Logger) (*nats.Conn, error) {
	ctx := context.Background()
	opts := []nats.Option{
		nats.Name("symbols-gallery"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn(ctx, "disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	}
	return nats.Connect(url, opts...)
}
