// Package settlement owns the guarded state-transition primitive that every
// payment-completing operation funnels through. Only this package may flip
// the status fields on payments and batches.
package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/eventreg/internal/models"
)

// ErrConflict is returned when a transition is attempted from a state that is
// neither an expected pre-state nor the target itself. Callers surface it as
// "already processed / already settled" rather than a generic failure.
var ErrConflict = errors.New("state transition conflict")

// PaymentStore is the payment write path the transitioner needs.
type PaymentStore interface {
	UpdateStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected []models.PaymentStatus, target models.PaymentStatus, fields map[string]interface{}) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}

// BatchStore is the batch write path the transitioner needs.
type BatchStore interface {
	UpdatePaymentStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected []models.BatchPaymentStatus, target models.BatchPaymentStatus) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

// Request describes one guarded transition of a payment and, optionally, the
// synchronized flip of the owning batch's payment-status mirror.
type Request struct {
	PaymentID     uuid.UUID
	Expected      []models.PaymentStatus
	Target        models.PaymentStatus
	PaymentFields map[string]interface{}

	// BatchTarget is applied atomically with the payment transition when
	// SyncBatch is true. BatchExpected guards the mirror the same way.
	SyncBatch     bool
	BatchID       uuid.UUID
	BatchExpected []models.BatchPaymentStatus
	BatchTarget   models.BatchPaymentStatus
}

// Result reports what a transition call actually did.
type Result struct {
	// Applied is true when this call performed the transition.
	Applied bool
	// AlreadySettled is true when the record was already in the target
	// state and the call was a successful no-op.
	AlreadySettled bool
}

// Transitioner is the concurrency-safe transition primitive. Implementations
// are linearized per payment and per batch: of N concurrent callers moving a
// record out of the same pre-state, exactly one observes Applied=true.
type Transitioner interface {
	Transition(ctx context.Context, req Request) (*Result, error)
}

// New selects the strategy at startup. The transactional strategy is used
// when the storage engine supports multi-record transactions; otherwise the
// sequential best-effort strategy is used.
func New(db *gorm.DB, payments PaymentStore, batches BatchStore, transactional bool) Transitioner {
	if transactional && ProbeTransactionSupport(db) {
		return &transactionalTransitioner{db: db, payments: payments, batches: batches}
	}
	log.Warn().Msg("Multi-record transactions unavailable, settlement will use sequential writes")
	return &sequentialTransitioner{payments: payments, batches: batches}
}

// ProbeTransactionSupport checks whether the connected storage engine accepts
// multi-statement transactions.
func ProbeTransactionSupport(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	err := db.Transaction(func(tx *gorm.DB) error { return nil })
	if err != nil {
		log.Warn().Err(err).Msg("Transaction support probe failed")
		return false
	}
	return true
}

// resolveNoOp classifies a lost CAS race: already in the target state is a
// successful no-op, anything else is a conflict.
func resolveNoOp(ctx context.Context, payments PaymentStore, paymentID uuid.UUID, target models.PaymentStatus) (*Result, error) {
	payment, err := payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-read payment after lost transition race")
	}

	if payment.Status == target {
		log.Info().
			Str("payment_id", paymentID.String()).
			Str("status", string(target)).
			Msg("Transition already applied, treating as no-op")
		return &Result{Applied: false, AlreadySettled: true}, nil
	}

	return nil, errors.Wrapf(ErrConflict,
		"payment %s is %s, cannot transition to %s", paymentID, payment.Status, target)
}

// transactionalTransitioner applies the payment and batch writes inside one
// database transaction.
type transactionalTransitioner struct {
	db       *gorm.DB
	payments PaymentStore
	batches  BatchStore
}

func (t *transactionalTransitioner) Transition(ctx context.Context, req Request) (*Result, error) {
	var applied bool

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := t.payments.UpdateStatusCAS(ctx, tx, req.PaymentID, req.Expected, req.Target, req.PaymentFields)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race; roll back and classify outside the transaction.
			applied = false
			return nil
		}

		if req.SyncBatch {
			ok, err := t.batches.UpdatePaymentStatusCAS(ctx, tx, req.BatchID, req.BatchExpected, req.BatchTarget)
			if err != nil {
				return err
			}
			if !ok {
				// The batch mirror is out of step with the payment; abort so
				// the two records are never observed inconsistent.
				return errors.Wrapf(ErrConflict,
					"batch %s payment-status mirror rejected transition to %s", req.BatchID, req.BatchTarget)
			}
		}

		applied = true
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, "settlement transaction failed")
	}

	if !applied {
		return resolveNoOp(ctx, t.payments, req.PaymentID, req.Target)
	}

	return &Result{Applied: true}, nil
}

// sequentialTransitioner is the fallback for storage engines without
// multi-record transactions: payment first, then batch. A batch failure after
// the payment succeeded is logged for reconciliation, never rolled back,
// since the gateway may already have confirmed funds.
type sequentialTransitioner struct {
	payments PaymentStore
	batches  BatchStore
}

func (t *sequentialTransitioner) Transition(ctx context.Context, req Request) (*Result, error) {
	ok, err := t.payments.UpdateStatusCAS(ctx, nil, req.PaymentID, req.Expected, req.Target, req.PaymentFields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to transition payment")
	}
	if !ok {
		return resolveNoOp(ctx, t.payments, req.PaymentID, req.Target)
	}

	if req.SyncBatch {
		ok, err := t.batches.UpdatePaymentStatusCAS(ctx, nil, req.BatchID, req.BatchExpected, req.BatchTarget)
		if err != nil || !ok {
			log.Error().
				Err(err).
				Str("payment_id", req.PaymentID.String()).
				Str("batch_id", req.BatchID.String()).
				Str("payment_status", string(req.Target)).
				Str("batch_target", string(req.BatchTarget)).
				Msg("Reconciliation needed: payment transitioned but batch mirror update failed")
			// The payment transition stands; report success so retries of the
			// same target remain no-ops.
		}
	}

	return &Result{Applied: true}, nil
}
