package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/eventreg/internal/cache"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/pricing"
	"example.com/eventreg/internal/repositories"
)

// batchCacheTTL bounds staleness for batch reads between settlement
// invalidations.
const batchCacheTTL = 10 * time.Minute

// registrationBatchStore is the batch access the registration service needs.
type registrationBatchStore interface {
	CreateWithRegistrations(ctx context.Context, batch *models.Batch, registrations []models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	GetByReference(ctx context.Context, reference string) (*models.Batch, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type registrationStore interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error)
}

// StudentEntry is one student row in a batch submission.
type StudentEntry struct {
	StudentName  string                 `json:"student_name" validate:"required"`
	StudentEmail string                 `json:"student_email" validate:"omitempty,email"`
	Grade        string                 `json:"grade" validate:"required"`
	FormData     map[string]interface{} `json:"form_data"`
}

// BatchSubmission is a school's bulk registration request.
type BatchSubmission struct {
	EventID     uuid.UUID          `json:"event_id" validate:"required"`
	SchoolID    uuid.UUID          `json:"school_id" validate:"required"`
	PaymentMode models.PaymentMode `json:"payment_mode" validate:"required,oneof=ONLINE OFFLINE"`
	Students    []StudentEntry     `json:"students" validate:"required,min=1,dive"`
}

// SubmittedBatch is the response to a batch submission: the priced batch plus
// the opening payment attempt.
type SubmittedBatch struct {
	Batch   *models.Batch `json:"batch"`
	Payment *PaymentOrder `json:"payment"`
}

// RegistrationService handles batch submission: validation, pricing and the
// atomic creation of the batch with its registrations and opening payment
// attempt.
type RegistrationService struct {
	events        eventStore
	schools       schoolStore
	batches       registrationBatchStore
	registrations registrationStore
	calculator    *pricing.Calculator
	payments      *PaymentService
	cache         *cache.RedisCache
	validate      *validator.Validate
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	calculator *pricing.Calculator,
	payments *PaymentService,
	redisCache *cache.RedisCache,
) *RegistrationService {
	return &RegistrationService{
		events:        repositories.NewEventRepository(db, readOnlyDB),
		schools:       repositories.NewSchoolRepository(db, readOnlyDB),
		batches:       repositories.NewBatchRepository(db, readOnlyDB),
		registrations: repositories.NewRegistrationRepository(db, readOnlyDB),
		calculator:    calculator,
		payments:      payments,
		cache:         redisCache,
		validate:      validator.New(),
	}
}

// SubmitBatch validates, prices and persists a bulk registration. The batch,
// its registrations and the priced totals are written in one transaction; a
// payment attempt is opened immediately after.
func (s *RegistrationService) SubmitBatch(ctx context.Context, submission *BatchSubmission) (*SubmittedBatch, error) {
	if err := s.validate.Struct(submission); err != nil {
		return nil, errors.Wrap(ErrValidation, err.Error())
	}

	event, err := s.events.GetByID(ctx, submission.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventActive {
		return nil, errors.Wrapf(ErrValidation, "event %s is not open for registration", event.Name)
	}
	if !event.RegistrationDeadline.IsZero() && time.Now().After(event.RegistrationDeadline) {
		return nil, errors.Wrapf(ErrValidation, "registration deadline for %s has passed", event.Name)
	}

	school, err := s.schools.GetByID(ctx, submission.SchoolID)
	if err != nil {
		return nil, err
	}

	priced, err := s.calculator.Price(ctx, event, school, len(submission.Students))
	if err != nil {
		return nil, err
	}

	batch := &models.Batch{
		ID:            uuid.New(),
		Reference:     newBatchReference(),
		EventID:       event.ID,
		SchoolID:      school.ID,
		TotalStudents: len(submission.Students),
		Currency:      priced.Currency,
		GrossAmount:   priced.GrossAmount,
		DiscountPct:   priced.DiscountPct,
		TotalAmount:   priced.NetAmount,
		Status:        models.BatchSubmitted,
		PaymentMode:   submission.PaymentMode,
		PaymentStatus: models.BatchPaymentPending,
	}

	registrations := make([]models.Registration, 0, len(submission.Students))
	for _, student := range submission.Students {
		reg := models.Registration{
			ID:           uuid.New(),
			BatchID:      batch.ID,
			StudentName:  strings.TrimSpace(student.StudentName),
			StudentEmail: student.StudentEmail,
			Grade:        student.Grade,
		}
		if student.FormData != nil {
			if err := reg.SetFormData(student.FormData); err != nil {
				return nil, err
			}
		}
		registrations = append(registrations, reg)
	}

	if err := s.batches.CreateWithRegistrations(ctx, batch, registrations); err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_reference", batch.Reference).
		Str("event_id", event.ID.String()).
		Str("school_id", school.ID.String()).
		Int("students", batch.TotalStudents).
		Str("currency", batch.Currency).
		Float64("total_amount", batch.TotalAmount).
		Float64("discount_pct", batch.DiscountPct).
		Msg("Batch submitted")

	order, err := s.payments.CreateAttempt(ctx, batch.ID, submission.PaymentMode)
	if err != nil {
		// The batch stands; the school can open a new attempt.
		log.Error().Err(err).Str("batch_reference", batch.Reference).Msg("Failed to open payment attempt for new batch")
		return &SubmittedBatch{Batch: batch}, nil
	}

	return &SubmittedBatch{Batch: batch, Payment: order}, nil
}

// GetBatch returns a batch by ID
func (s *RegistrationService) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	return s.batches.GetByID(ctx, id)
}

// GetBatchByReference returns a batch by its human-facing reference. Reads
// through the cache; settlement and refund invalidate the entry.
func (s *RegistrationService) GetBatchByReference(ctx context.Context, reference string) (*models.Batch, error) {
	cacheKey := cache.BatchCacheKey(reference)

	if s.cache != nil {
		var cached models.Batch
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	batch, err := s.batches.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, batch, batchCacheTTL); err != nil {
			log.Debug().Err(err).Str("batch_reference", reference).Msg("Failed to cache batch")
		}
	}

	return batch, nil
}

// DeleteBatch removes a batch and its registrations. Deleting a settled
// batch is allowed but logged loudly; its payments are never removed.
func (s *RegistrationService) DeleteBatch(ctx context.Context, reference string) error {
	batch, err := s.batches.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if batch.PaymentStatus.Settled() {
		log.Warn().
			Str("batch_reference", batch.Reference).
			Str("payment_status", string(batch.PaymentStatus)).
			Msg("Deleting a batch with a settled payment")
	}

	if err := s.batches.Delete(ctx, batch.ID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.BatchCacheKey(reference)); err != nil {
			log.Debug().Err(err).Str("batch_reference", reference).Msg("Failed to invalidate batch cache")
		}
	}

	log.Info().Str("batch_reference", reference).Msg("Batch deleted")
	return nil
}

// ListRegistrations returns every registration in a batch.
func (s *RegistrationService) ListRegistrations(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error) {
	return s.registrations.ListByBatch(ctx, batchID)
}

func newBatchReference() string {
	return fmt.Sprintf("BR-%s", strings.ToUpper(uuid.New().String()[:8]))
}
