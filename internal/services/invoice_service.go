package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/eventreg/internal/invoices"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/repositories"
	"example.com/eventreg/internal/settlement"
)

// invoiceBatchStore is the batch lookup the invoice service needs.
type invoiceBatchStore interface {
	GetByReference(ctx context.Context, reference string) (*models.Batch, error)
}

// InvoiceService exposes the invoice operations the API serves. The heavy
// lifting lives in the generator; the service resolves references and maps
// failures onto the API error taxonomy.
type InvoiceService struct {
	batches   invoiceBatchStore
	generator *invoices.Generator
	metrics   *metrics.Metrics
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(db *gorm.DB, readOnlyDB *gorm.DB, generator *invoices.Generator, metricsCollector *metrics.Metrics) *InvoiceService {
	return &InvoiceService{
		batches:   repositories.NewBatchRepository(db, readOnlyDB),
		generator: generator,
		metrics:   metricsCollector,
	}
}

// Generate produces the invoice for a settled batch, returning the existing
// artifact when one has already been generated.
func (s *InvoiceService) Generate(ctx context.Context, batchReference string) (*invoices.Artifact, error) {
	batch, err := s.batches.GetByReference(ctx, batchReference)
	if err != nil {
		return nil, err
	}

	artifact, err := s.generator.Generate(ctx, batch.ID)
	if err != nil {
		if errors.Is(err, invoices.ErrNotSettled) {
			return nil, errors.Wrap(settlement.ErrConflict, err.Error())
		}
		return nil, err
	}
	if !artifact.Existing {
		s.metrics.IncrementCounter(metrics.CounterInvoicesGenerated)
	}
	return artifact, nil
}

// Regenerate replaces the PDF artifact of an existing invoice, keeping the
// invoice number stable.
func (s *InvoiceService) Regenerate(ctx context.Context, batchReference string) (*invoices.Artifact, error) {
	artifact, err := s.generator.Regenerate(ctx, batchReference)
	if err != nil {
		if errors.Is(err, invoices.ErrNoInvoice) || errors.Is(err, invoices.ErrNotSettled) {
			return nil, errors.Wrap(settlement.ErrConflict, err.Error())
		}
		return nil, err
	}
	return artifact, nil
}

// DownloadURL resolves the stored artifact URL for a batch's invoice.
func (s *InvoiceService) DownloadURL(ctx context.Context, batchReference string) (string, error) {
	batch, err := s.batches.GetByReference(ctx, batchReference)
	if err != nil {
		return "", err
	}
	if !batch.HasInvoice() {
		return "", errors.Wrapf(repositories.ErrNotFound, "batch %s has no invoice", batchReference)
	}
	return *batch.InvoicePDFURL, nil
}

// BulkGenerate sweeps settled batches that are missing invoices. Per-batch
// failures are collected, not fatal.
func (s *InvoiceService) BulkGenerate(ctx context.Context) (*invoices.BulkResult, error) {
	result, err := s.generator.BulkGenerate(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCounterBy(metrics.CounterInvoicesGenerated, int64(len(result.Generated)))
	if len(result.Failed) > 0 {
		log.Warn().
			Int("generated", len(result.Generated)).
			Int("failed", len(result.Failed)).
			Msg("Bulk invoice generation finished with failures")
	} else {
		log.Info().Int("generated", len(result.Generated)).Msg("Bulk invoice generation finished")
	}
	return result, nil
}
