package invoices

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/currency"
	"example.com/eventreg/internal/models"
)

var (
	// ErrNotSettled means the batch's payment has not reached a settled state.
	ErrNotSettled = errors.New("batch payment is not settled")
	// ErrNoInvoice means regeneration was asked for a batch that never had an
	// invoice generated.
	ErrNoInvoice = errors.New("batch has no invoice")
)

// BatchStore is the batch access the generator needs.
type BatchStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	GetByReference(ctx context.Context, reference string) (*models.Batch, error)
	SetInvoice(ctx context.Context, id uuid.UUID, invoiceNumber, url string) (bool, error)
	OverwriteInvoiceURL(ctx context.Context, id uuid.UUID, url string) error
	ListSettledWithoutInvoice(ctx context.Context, limit int) ([]models.Batch, error)
}

// PaymentStore is the payment access the generator needs.
type PaymentStore interface {
	GetCompletedForBatch(ctx context.Context, batchID uuid.UUID) (*models.Payment, error)
}

// SchoolStore resolves the school an invoice is billed to.
type SchoolStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.School, error)
}

// EventStore resolves the event an invoice covers.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// RegistrationStore lists the students an invoice itemizes.
type RegistrationStore interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error)
}

// Artifact is the generated invoice reference.
type Artifact struct {
	InvoiceNumber string `json:"invoice_number"`
	URL           string `json:"url"`
	// Existing is true when generation was skipped because the batch
	// already carried an invoice.
	Existing bool `json:"existing"`
}

// BulkFailure pairs a batch reference with the error that stopped it.
type BulkFailure struct {
	BatchReference string `json:"batch_reference"`
	Error          string `json:"error"`
}

// BulkResult partitions a bulk run so one failing batch never blocks the rest.
type BulkResult struct {
	Generated []Artifact    `json:"generated"`
	Failed    []BulkFailure `json:"failed"`
}

// RenderData is everything the renderer needs for one invoice.
type RenderData struct {
	InvoiceNumber string
	IssuedAt      time.Time
	Batch         *models.Batch
	Payment       *models.Payment
	School        *models.School
	Event         *models.Event
	Registrations []models.Registration
}

// Renderer produces the invoice artifact and returns its URL.
type Renderer interface {
	Render(ctx context.Context, data RenderData) (string, error)
}

// Generator produces invoice artifacts for settled batches, exactly once per
// batch unless explicitly regenerated.
type Generator struct {
	batches       BatchStore
	payments      PaymentStore
	schools       SchoolStore
	events        EventStore
	registrations RegistrationStore
	renderer      Renderer
	bulkSize      int
}

// NewGenerator creates an invoice generator.
func NewGenerator(batches BatchStore, payments PaymentStore, schools SchoolStore, events EventStore, registrations RegistrationStore, renderer Renderer, bulkSize int) *Generator {
	if bulkSize <= 0 {
		bulkSize = 50
	}
	return &Generator{
		batches:       batches,
		payments:      payments,
		schools:       schools,
		events:        events,
		registrations: registrations,
		renderer:      renderer,
		bulkSize:      bulkSize,
	}
}

// InvoiceNumberFor derives the batch's invoice number. It is stable across
// regeneration: the number is a function of the batch, not of the render.
func InvoiceNumberFor(batch *models.Batch) string {
	short := strings.ToUpper(strings.ReplaceAll(batch.ID.String(), "-", ""))[:8]
	return fmt.Sprintf("INV-%d-%s", batch.CreatedAt.Year(), short)
}

// Generate renders the invoice for a settled batch. If the batch already
// carries an invoice the existing artifact is returned and nothing is
// rendered; the NULL-guarded write makes a concurrent double-generate safe.
func (g *Generator) Generate(ctx context.Context, batchID uuid.UUID) (*Artifact, error) {
	batch, err := g.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.HasInvoice() {
		number := ""
		if batch.InvoiceNumber != nil {
			number = *batch.InvoiceNumber
		}
		return &Artifact{InvoiceNumber: number, URL: *batch.InvoicePDFURL, Existing: true}, nil
	}

	if !batch.PaymentStatus.Settled() {
		return nil, errors.Wrapf(ErrNotSettled, "batch %s payment is %s", batch.Reference, batch.PaymentStatus)
	}

	number := InvoiceNumberFor(batch)
	url, err := g.render(ctx, batch, number)
	if err != nil {
		return nil, err
	}

	ok, err := g.batches.SetInvoice(ctx, batch.ID, number, url)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent call won the write; return its artifact.
		current, err := g.batches.GetByID(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		if current.HasInvoice() {
			existingNumber := ""
			if current.InvoiceNumber != nil {
				existingNumber = *current.InvoiceNumber
			}
			return &Artifact{InvoiceNumber: existingNumber, URL: *current.InvoicePDFURL, Existing: true}, nil
		}
		return nil, errors.Errorf("failed to record invoice for batch %s", batch.Reference)
	}

	log.Info().
		Str("batch_reference", batch.Reference).
		Str("invoice_number", number).
		Msg("Invoice generated")

	return &Artifact{InvoiceNumber: number, URL: url}, nil
}

// Regenerate re-renders and overwrites the artifact URL for corrections. The
// invoice number is preserved. Requires the batch's payment to currently be
// completed; it does not re-validate anything further.
func (g *Generator) Regenerate(ctx context.Context, batchReference string) (*Artifact, error) {
	batch, err := g.batches.GetByReference(ctx, batchReference)
	if err != nil {
		return nil, err
	}

	if !batch.HasInvoice() || batch.InvoiceNumber == nil {
		return nil, errors.Wrapf(ErrNoInvoice, "batch %s has nothing to regenerate", batchReference)
	}

	if _, err := g.payments.GetCompletedForBatch(ctx, batch.ID); err != nil {
		return nil, errors.Wrapf(err, "batch %s has no completed payment", batchReference)
	}

	number := *batch.InvoiceNumber
	url, err := g.render(ctx, batch, number)
	if err != nil {
		return nil, err
	}

	if err := g.batches.OverwriteInvoiceURL(ctx, batch.ID, url); err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_reference", batch.Reference).
		Str("invoice_number", number).
		Msg("Invoice regenerated")

	return &Artifact{InvoiceNumber: number, URL: url}, nil
}

// BulkGenerate scans for settled batches without an invoice and processes a
// bounded page. Per-batch failures are collected, not propagated, so one bad
// batch never blocks the others.
func (g *Generator) BulkGenerate(ctx context.Context) (*BulkResult, error) {
	batches, err := g.batches.ListSettledWithoutInvoice(ctx, g.bulkSize)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, batch := range batches {
		artifact, err := g.Generate(ctx, batch.ID)
		if err != nil {
			log.Error().
				Err(err).
				Str("batch_reference", batch.Reference).
				Msg("Bulk invoice generation failed for batch")
			result.Failed = append(result.Failed, BulkFailure{
				BatchReference: batch.Reference,
				Error:          err.Error(),
			})
			continue
		}
		result.Generated = append(result.Generated, *artifact)
	}

	return result, nil
}

// render gathers the invoice's data and runs the renderer.
func (g *Generator) render(ctx context.Context, batch *models.Batch, number string) (string, error) {
	school, err := g.schools.GetByID(ctx, batch.SchoolID)
	if err != nil {
		return "", err
	}
	event, err := g.events.GetByID(ctx, batch.EventID)
	if err != nil {
		return "", err
	}
	registrations, err := g.registrations.ListByBatch(ctx, batch.ID)
	if err != nil {
		return "", err
	}

	payment, err := g.payments.GetCompletedForBatch(ctx, batch.ID)
	if err != nil {
		// First-time generation runs right after settlement; the completed
		// payment must exist by then.
		return "", errors.Wrapf(err, "no completed payment for batch %s", batch.Reference)
	}

	return g.renderer.Render(ctx, RenderData{
		InvoiceNumber: number,
		IssuedAt:      time.Now(),
		Batch:         batch,
		Payment:       payment,
		School:        school,
		Event:         event,
		Registrations: registrations,
	})
}

// FileRenderer renders invoices to the local filesystem and serves them from
// a configured base URL.
type FileRenderer struct {
	outputDir string
	baseURL   string
}

// NewFileRenderer creates a file-backed renderer.
func NewFileRenderer(cfg config.InvoiceConfig) *FileRenderer {
	return &FileRenderer{
		outputDir: cfg.OutputDir,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Render writes the invoice document and returns its public URL.
func (r *FileRenderer) Render(ctx context.Context, data RenderData) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create invoice output directory")
	}

	filename := data.InvoiceNumber + ".pdf"
	path := filepath.Join(r.outputDir, filename)

	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s\n", data.InvoiceNumber)
	fmt.Fprintf(&b, "Issued: %s\n", data.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Billed to: %s <%s>\n", data.School.Name, data.School.Email)
	fmt.Fprintf(&b, "Event: %s\n", data.Event.Name)
	fmt.Fprintf(&b, "Batch: %s\n", data.Batch.Reference)
	fmt.Fprintf(&b, "Students: %d\n", data.Batch.TotalStudents)
	fmt.Fprintf(&b, "Gross: %s\n", currency.Format(data.Batch.GrossAmount, data.Batch.Currency))
	fmt.Fprintf(&b, "Discount: %.2f%%\n", data.Batch.DiscountPct)
	fmt.Fprintf(&b, "Total: %s\n", currency.Format(data.Batch.TotalAmount, data.Batch.Currency))
	fmt.Fprintf(&b, "Payment: %s (%s)\n", data.Payment.ID, data.Payment.PaymentMode)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write invoice artifact")
	}

	return r.baseURL + "/" + filename, nil
}
