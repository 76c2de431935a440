package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/eventreg/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate record")

// EventRepository provides access to event data
type EventRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventRepository {
	return &EventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).First(&event, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "event")
		}
		return nil, errors.Wrap(err, "failed to get event by ID")
	}
	return &event, nil
}

// SchoolRepository provides access to school data
type SchoolRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSchoolRepository creates a new school repository
func NewSchoolRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SchoolRepository {
	return &SchoolRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a school by ID
func (r *SchoolRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.School, error) {
	var school models.School
	err := r.readOnlyDB.WithContext(ctx).First(&school, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "school")
		}
		return nil, errors.Wrap(err, "failed to get school by ID")
	}
	return &school, nil
}

// BatchRepository provides access to batch data
type BatchRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *gorm.DB, readOnlyDB *gorm.DB) *BatchRepository {
	return &BatchRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// CreateWithRegistrations creates a batch and its registrations in one
// transaction so a partially-written submission is never visible.
func (r *BatchRepository) CreateWithRegistrations(ctx context.Context, batch *models.Batch, registrations []models.Registration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return errors.Wrap(err, "failed to create batch")
		}
		for i := range registrations {
			registrations[i].BatchID = batch.ID
		}
		if len(registrations) > 0 {
			if err := tx.Create(&registrations).Error; err != nil {
				return errors.Wrap(err, "failed to create registrations")
			}
		}
		return nil
	})
}

// Delete removes a batch and its registrations. Payments are kept: they are
// the audit history of money movement and survive their batch.
func (r *BatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete registrations")
		}
		result := tx.Delete(&models.Batch{}, id)
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to delete batch")
		}
		if result.RowsAffected == 0 {
			return errors.Wrap(ErrNotFound, "batch")
		}
		return nil
	})
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := r.readOnlyDB.WithContext(ctx).First(&batch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "batch")
		}
		return nil, errors.Wrap(err, "failed to get batch by ID")
	}
	return &batch, nil
}

// GetByReference gets a batch by its human-facing reference
func (r *BatchRepository) GetByReference(ctx context.Context, reference string) (*models.Batch, error) {
	var batch models.Batch
	err := r.readOnlyDB.WithContext(ctx).Where("reference = ?", reference).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "batch")
		}
		return nil, errors.Wrap(err, "failed to get batch by reference")
	}
	return &batch, nil
}

// UpdatePaymentStatusCAS flips the batch's payment-status mirror only when the
// current value is one of the expected pre-states. Returns false on a lost
// race without error.
func (r *BatchRepository) UpdatePaymentStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected []models.BatchPaymentStatus, target models.BatchPaymentStatus) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}

	result := db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND payment_status IN ?", id, expected).
		Update("payment_status", target)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to update batch payment status")
	}

	return result.RowsAffected > 0, nil
}

// SetInvoice records the generated invoice artifact. The guard on a NULL
// invoice_pdf_url makes first-time generation exactly-once under concurrency.
func (r *BatchRepository) SetInvoice(ctx context.Context, id uuid.UUID, invoiceNumber, url string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND invoice_pdf_url IS NULL", id).
		Updates(map[string]interface{}{
			"invoice_number":  invoiceNumber,
			"invoice_pdf_url": url,
		})

	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to set invoice on batch")
	}

	return result.RowsAffected > 0, nil
}

// OverwriteInvoiceURL replaces the invoice artifact URL. Used only by the
// explicit admin regenerate action; the invoice number is preserved.
func (r *BatchRepository) OverwriteInvoiceURL(ctx context.Context, id uuid.UUID, url string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND invoice_pdf_url IS NOT NULL", id).
		Update("invoice_pdf_url", url)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to overwrite invoice URL")
	}

	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "batch with existing invoice")
	}

	return nil
}

// ListSettledWithoutInvoice returns a bounded page of batches whose payment
// settled but which have no invoice artifact yet.
func (r *BatchRepository) ListSettledWithoutInvoice(ctx context.Context, limit int) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.readOnlyDB.WithContext(ctx).
		Where("payment_status IN ? AND invoice_pdf_url IS NULL",
			[]models.BatchPaymentStatus{models.BatchPaymentCompleted, models.BatchPaymentVerified}).
		Order("created_at asc").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list settled batches without invoice")
	}
	return batches, nil
}

// PaymentRepository provides access to payment data
type PaymentRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create creates a new payment attempt
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrap(ErrDuplicate, "payment")
		}
		return errors.Wrap(err, "failed to create payment")
	}
	return nil
}

// GetByID gets a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.readOnlyDB.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "payment")
		}
		return nil, errors.Wrap(err, "failed to get payment by ID")
	}
	return &payment, nil
}

// GetByGatewayOrderID looks a payment up by the gateway's order identifier.
// Reads through the write DB: webhook processing must not race replication lag.
func (r *PaymentRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "payment for gateway order")
		}
		return nil, errors.Wrap(err, "failed to get payment by gateway order ID")
	}
	return &payment, nil
}

// UpdateStatusCAS moves a payment to target only when its current status is
// one of the expected pre-states, optionally writing extra fields in the same
// statement. Returns false on a lost race without error.
func (r *PaymentRepository) UpdateStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected []models.PaymentStatus, target models.PaymentStatus, fields map[string]interface{}) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}

	updates := map[string]interface{}{"status": target}
	for k, v := range fields {
		updates[k] = v
	}

	result := db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)

	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to update payment status")
	}

	return result.RowsAffected > 0, nil
}

// HasCompletedForBatch reports whether any payment for the batch is currently
// completed. Refunded payments no longer count.
func (r *PaymentRepository) HasCompletedForBatch(ctx context.Context, batchID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("batch_id = ? AND status = ?", batchID, models.PaymentCompleted).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to count completed payments for batch")
	}
	return count > 0, nil
}

// GetCompletedForBatch returns the batch's currently completed payment, if any.
func (r *PaymentRepository) GetCompletedForBatch(ctx context.Context, batchID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.readOnlyDB.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, models.PaymentCompleted).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "completed payment for batch")
		}
		return nil, errors.Wrap(err, "failed to get completed payment for batch")
	}
	return &payment, nil
}

// RegistrationRepository provides access to registration data
type RegistrationRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListByBatch returns all registrations in a batch
func (r *RegistrationRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error) {
	var registrations []models.Registration
	err := r.readOnlyDB.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at asc").
		Find(&registrations).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list registrations for batch")
	}
	return registrations, nil
}

// GetByID gets a registration by ID
func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var registration models.Registration
	err := r.readOnlyDB.WithContext(ctx).First(&registration, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "registration")
		}
		return nil, errors.Wrap(err, "failed to get registration by ID")
	}
	return &registration, nil
}

// SetResult attaches a post-event result. Result fields are the only
// mutable registration fields besides the certificate URL.
func (r *RegistrationRepository) SetResult(ctx context.Context, id uuid.UUID, score *float64, rank *int, award, remarks *string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"result_score":   score,
			"result_rank":    rank,
			"result_award":   award,
			"result_remarks": remarks,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to set registration result")
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "registration")
	}
	return nil
}

// SetCertificateURL records the issued certificate. Guarded on the URL still
// being empty so a retried sweep never overwrites an issued certificate.
func (r *RegistrationRepository) SetCertificateURL(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND certificate_url IS NULL", id).
		Update("certificate_url", url)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to set certificate URL")
	}
	return result.RowsAffected > 0, nil
}

// ListCertifiable returns a bounded page of registrations eligible for
// certificate issuance: settled batch, attached result, no certificate yet.
func (r *RegistrationRepository) ListCertifiable(ctx context.Context, limit int) ([]models.Registration, error) {
	var registrations []models.Registration
	err := r.readOnlyDB.WithContext(ctx).
		Joins("JOIN batches ON batches.id = registrations.batch_id").
		Where("batches.payment_status IN ?",
			[]models.BatchPaymentStatus{models.BatchPaymentCompleted, models.BatchPaymentVerified}).
		Where("registrations.certificate_url IS NULL").
		Where("registrations.result_score IS NOT NULL OR registrations.result_rank IS NOT NULL OR registrations.result_award IS NOT NULL").
		Limit(limit).
		Find(&registrations).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list certifiable registrations")
	}
	return registrations, nil
}

// CountryCurrencyRepository provides access to country→currency reference data
type CountryCurrencyRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCountryCurrencyRepository creates a new reference-data repository
func NewCountryCurrencyRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CountryCurrencyRepository {
	return &CountryCurrencyRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByCountry looks a country up case-insensitively.
func (r *CountryCurrencyRepository) GetByCountry(ctx context.Context, countryName string) (*models.CountryCurrency, error) {
	var row models.CountryCurrency
	err := r.readOnlyDB.WithContext(ctx).
		Where("LOWER(country_name) = ?", strings.ToLower(countryName)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "country currency")
		}
		return nil, errors.Wrap(err, "failed to get country currency")
	}
	return &row, nil
}

// BulkUpsert loads reference rows, replacing currency data for countries
// that already exist.
func (r *CountryCurrencyRepository) BulkUpsert(ctx context.Context, rows []models.CountryCurrency) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"country_code", "currency", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return errors.Wrap(err, "failed to bulk upsert country currencies")
	}
	return nil
}

// WebhookEventRepository provides access to the gateway payload audit trail
type WebhookEventRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Record stores a raw gateway payload. A duplicate provider event ID returns
// ErrDuplicate so retried deliveries are detected without processing.
func (r *WebhookEventRepository) Record(ctx context.Context, event *models.GatewayWebhookEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrap(ErrDuplicate, "gateway webhook event")
		}
		return errors.Wrap(err, "failed to record gateway webhook event")
	}
	return nil
}

// GetByProviderEventID loads the audit row for a provider event. Reads
// through the write DB: redelivery handling must not race replication lag.
func (r *WebhookEventRepository) GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*models.GatewayWebhookEvent, error) {
	var event models.GatewayWebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "gateway webhook event")
		}
		return nil, errors.Wrap(err, "failed to get gateway webhook event")
	}
	return &event, nil
}

// CertificateConfigRepository provides access to per-event certificate
// platform overrides
type CertificateConfigRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCertificateConfigRepository creates a new certificate config repository
func NewCertificateConfigRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CertificateConfigRepository {
	return &CertificateConfigRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByEventAndRegion loads an event's certificate override for a region.
func (r *CertificateConfigRepository) GetByEventAndRegion(ctx context.Context, eventID uuid.UUID, region string) (*models.CertificateConfig, error) {
	var cfg models.CertificateConfig
	err := r.readOnlyDB.WithContext(ctx).
		Where("event_id = ? AND region = ?", eventID, region).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "certificate config")
		}
		return nil, errors.Wrap(err, "failed to get certificate config")
	}
	return &cfg, nil
}

// Upsert creates or replaces an event's certificate override for a region.
func (r *CertificateConfigRepository) Upsert(ctx context.Context, cfg *models.CertificateConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}, {Name: "region"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"website_url", "issuance_url", "health_check_url",
				"key_validation_url", "api_key", "template_id",
				"auto_generate", "updated_at",
			}),
		}).
		Create(cfg).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert certificate config")
	}
	return nil
}

// MarkProcessed stamps the audit row after the transition completed.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.GatewayWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingError,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark webhook event processed")
	}
	return nil
}
