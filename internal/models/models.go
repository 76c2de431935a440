package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// PaymentMode distinguishes gateway payments from bank-transfer payments
type PaymentMode string

const (
	PaymentModeOnline  PaymentMode = "ONLINE"
	PaymentModeOffline PaymentMode = "OFFLINE"
)

// PaymentStatus is the lifecycle state of a payment attempt
type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentProcessing          PaymentStatus = "processing"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentFailed              PaymentStatus = "failed"
	PaymentRefunded            PaymentStatus = "refunded"
	PaymentPendingVerification PaymentStatus = "pending_verification"
)

// paymentTransitions lists the allowed source states for each target state.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentProcessing:          {PaymentPending},
	PaymentCompleted:           {PaymentPending, PaymentProcessing, PaymentPendingVerification},
	PaymentFailed:              {PaymentPending, PaymentProcessing, PaymentPendingVerification},
	PaymentRefunded:            {PaymentCompleted},
	PaymentPendingVerification: {PaymentPending},
}

// CanTransitionTo reports whether a payment may move from s to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, from := range paymentTransitions[target] {
		if from == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further gateway or admin action applies.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

// BatchStatus is the lifecycle state of a registration batch
type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchSubmitted BatchStatus = "submitted"
	BatchConfirmed BatchStatus = "confirmed"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchPaymentStatus mirrors the owning payment's state on the batch.
// "verified" is the completed state reached through the offline path.
type BatchPaymentStatus string

const (
	BatchPaymentPending             BatchPaymentStatus = "pending"
	BatchPaymentProcessing          BatchPaymentStatus = "processing"
	BatchPaymentCompleted           BatchPaymentStatus = "completed"
	BatchPaymentFailed              BatchPaymentStatus = "failed"
	BatchPaymentPendingVerification BatchPaymentStatus = "pending_verification"
	BatchPaymentVerified            BatchPaymentStatus = "verified"
)

// Settled reports whether the batch's payment has been confirmed.
func (s BatchPaymentStatus) Settled() bool {
	return s == BatchPaymentCompleted || s == BatchPaymentVerified
}

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventDraft    EventStatus = "draft"
	EventActive   EventStatus = "active"
	EventClosed   EventStatus = "closed"
	EventArchived EventStatus = "archived"
)

// DiscountRule is one tier of an event's bulk discount table
type DiscountRule struct {
	MinStudents        int     `json:"min_students"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

// Event represents a competition or exam that schools register batches against
type Event struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
	Name                 string         `gorm:"not null" json:"name"`
	Status               EventStatus    `gorm:"not null;default:'draft'" json:"status"`
	BaseFees             []byte         `gorm:"type:jsonb;not null" json:"base_fees"`
	BulkDiscountRules    []byte         `gorm:"type:jsonb" json:"bulk_discount_rules"`
	StartDate            time.Time      `json:"start_date"`
	EndDate              *time.Time     `json:"end_date"`
	RegistrationDeadline time.Time      `json:"registration_deadline"`
	FormSchema           []byte         `gorm:"type:jsonb" json:"form_schema"`
	Batches              []Batch        `gorm:"foreignKey:EventID" json:"-"`
}

// BaseFeeFor returns the event's per-student fee for a currency.
func (e *Event) BaseFeeFor(currency string) (float64, error) {
	var fees map[string]float64
	if err := json.Unmarshal(e.BaseFees, &fees); err != nil {
		return 0, errors.Wrap(err, "failed to unmarshal event base fees")
	}
	fee, ok := fees[currency]
	if !ok {
		return 0, errors.Errorf("event %s has no base fee for currency %s", e.ID, currency)
	}
	return fee, nil
}

// DiscountRules returns the event's bulk discount tiers.
func (e *Event) DiscountRules() ([]DiscountRule, error) {
	if len(e.BulkDiscountRules) == 0 {
		return nil, nil
	}
	var rules []DiscountRule
	if err := json.Unmarshal(e.BulkDiscountRules, &rules); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal discount rules")
	}
	return rules, nil
}

// School represents a registered school account
type School struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	Email        string         `gorm:"not null;uniqueIndex" json:"email"`
	Country      string         `gorm:"not null" json:"country"`
	CurrencyPref *string        `json:"currency_pref"`
	Batches      []Batch        `gorm:"foreignKey:SchoolID" json:"-"`
}

// Batch represents one school's submission of student registrations for one event
type Batch struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt     `gorm:"index" json:"-"`
	SchoolID      uuid.UUID          `gorm:"type:uuid;not null;index" json:"school_id"`
	EventID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"event_id"`
	Reference     string             `gorm:"not null;uniqueIndex" json:"reference"`
	Status        BatchStatus        `gorm:"not null;default:'draft'" json:"status"`
	TotalStudents int                `gorm:"not null" json:"total_students"`
	Currency      string             `gorm:"not null" json:"currency"`
	GrossAmount   float64            `gorm:"not null" json:"gross_amount"`
	DiscountPct   float64            `gorm:"not null;default:0" json:"discount_pct"`
	TotalAmount   float64            `gorm:"not null" json:"total_amount"`
	PaymentMode   PaymentMode        `gorm:"not null" json:"payment_mode"`
	PaymentStatus BatchPaymentStatus `gorm:"not null;default:'pending'" json:"payment_status"`
	InvoiceNumber *string            `json:"invoice_number"`
	InvoicePDFURL *string            `json:"invoice_pdf_url"`
	School        School             `gorm:"foreignKey:SchoolID" json:"-"`
	Event         Event              `gorm:"foreignKey:EventID" json:"-"`
	Registrations []Registration     `gorm:"foreignKey:BatchID" json:"-"`
	Payments      []Payment          `gorm:"foreignKey:BatchID" json:"-"`
}

// HasInvoice reports whether an invoice artifact has already been generated.
func (b *Batch) HasInvoice() bool {
	return b.InvoicePDFURL != nil && *b.InvoicePDFURL != ""
}

// Registration represents a single student inside a batch
type Registration struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	BatchID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"batch_id"`
	StudentName    string         `gorm:"not null" json:"student_name"`
	StudentEmail   string         `json:"student_email"`
	Grade          string         `json:"grade"`
	FormData       []byte         `gorm:"type:jsonb" json:"form_data"`
	ResultScore    *float64       `json:"result_score"`
	ResultRank     *int           `json:"result_rank"`
	ResultAward    *string        `json:"result_award"`
	ResultRemarks  *string        `json:"result_remarks"`
	CertificateURL *string        `json:"certificate_url"`
	Batch          Batch          `gorm:"foreignKey:BatchID" json:"-"`
}

// SetFormData marshals and stores the event-specific form answers.
func (r *Registration) SetFormData(data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal registration form data")
	}
	r.FormData = raw
	return nil
}

// HasResult reports whether a result has been attached after the event.
func (r *Registration) HasResult() bool {
	return r.ResultScore != nil || r.ResultRank != nil || r.ResultAward != nil
}

// OfflinePaymentDetails captures the receipt and verification trail for
// bank-transfer payments
type OfflinePaymentDetails struct {
	ReceiptURL     string     `json:"receipt_url"`
	TransactionRef string     `json:"transaction_ref"`
	VerifierNotes  string     `json:"verifier_notes,omitempty"`
	VerifiedBy     *uuid.UUID `json:"verified_by,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
}

// RefundData captures the admin-triggered refund trail
type RefundData struct {
	Reason     string    `json:"reason"`
	RefundedBy uuid.UUID `json:"refunded_by"`
	RefundedAt time.Time `json:"refunded_at"`
}

// Payment represents one payment attempt against a batch
type Payment struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	BatchID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"batch_id"`
	SchoolID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"school_id"`
	EventID          uuid.UUID      `gorm:"type:uuid;not null" json:"event_id"`
	Amount           float64        `gorm:"not null" json:"amount"`
	Currency         string         `gorm:"not null" json:"currency"`
	Status           PaymentStatus  `gorm:"not null;default:'pending';index" json:"status"`
	PaymentMode      PaymentMode    `gorm:"not null" json:"payment_mode"`
	GatewayOrderID   *string        `gorm:"uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID *string        `gorm:"index" json:"gateway_payment_id"`
	ErrorCode        *string        `json:"error_code"`
	ErrorDescription *string        `json:"error_description"`
	OfflineDetails   []byte         `gorm:"type:jsonb" json:"offline_payment_details"`
	Refund           []byte         `gorm:"type:jsonb" json:"refund_data"`
	Batch            Batch          `gorm:"foreignKey:BatchID" json:"-"`
	School           School         `gorm:"foreignKey:SchoolID" json:"-"`
}

// IsSuccessful is derived from the persisted status, never stored.
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentCompleted
}

// IsRefunded is derived from the persisted status, never stored.
func (p *Payment) IsRefunded() bool {
	return p.Status == PaymentRefunded
}

// OfflinePaymentDetails unmarshals the offline payment trail, if any.
func (p *Payment) OfflinePaymentDetails() (*OfflinePaymentDetails, error) {
	if len(p.OfflineDetails) == 0 {
		return nil, nil
	}
	var details OfflinePaymentDetails
	if err := json.Unmarshal(p.OfflineDetails, &details); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal offline payment details")
	}
	return &details, nil
}

// SetOfflinePaymentDetails marshals and stores the offline payment trail.
func (p *Payment) SetOfflinePaymentDetails(details OfflinePaymentDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return errors.Wrap(err, "failed to marshal offline payment details")
	}
	p.OfflineDetails = data
	return nil
}

// SetRefundData marshals and stores the refund trail.
func (p *Payment) SetRefundData(data RefundData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal refund data")
	}
	p.Refund = raw
	return nil
}

// CountryCurrency is a reference-data row mapping a country to its
// settlement currency
type CountryCurrency struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	CountryName string    `gorm:"not null;uniqueIndex" json:"country_name"`
	CountryCode string    `gorm:"not null" json:"country_code"`
	Currency    string    `gorm:"not null" json:"currency"`
}

// GatewayWebhookEvent stores raw gateway payloads with deduplication metadata
// for idempotent processing
type GatewayWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Provider        string     `gorm:"not null;index:ux_gateway_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"not null;default:'';index:ux_gateway_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"not null;index" json:"event_type"`
	Payload         []byte     `gorm:"type:jsonb;not null" json:"payload"`
	SignatureValid  bool       `gorm:"not null;default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `json:"processed_at"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
}

// Processed reports whether the event's transition went through cleanly. A
// redelivery of an unprocessed or failed event must be reprocessed, not
// dropped as a duplicate.
func (e *GatewayWebhookEvent) Processed() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}

// CertificateConfig is an event's certificate platform override for one
// region. When no row exists for an event and region, issuance falls back to
// the platform-level configuration.
type CertificateConfig struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	EventID          uuid.UUID `gorm:"type:uuid;not null;index:ux_certificate_configs_event_region,unique,priority:1" json:"event_id"`
	Region           string    `gorm:"not null;index:ux_certificate_configs_event_region,unique,priority:2" json:"region"`
	WebsiteURL       string    `json:"website_url"`
	IssuanceURL      string    `gorm:"not null" json:"issuance_url"`
	HealthCheckURL   string    `json:"health_check_url"`
	KeyValidationURL string    `json:"key_validation_url"`
	APIKey           string    `gorm:"not null" json:"-"`
	TemplateID       string    `gorm:"not null" json:"template_id"`
	AutoGenerate     bool      `gorm:"not null;default:false" json:"auto_generate"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Event{},
		&School{},
		&Batch{},
		&Registration{},
		&Payment{},
		&CountryCurrency{},
		&GatewayWebhookEvent{},
		&CertificateConfig{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
