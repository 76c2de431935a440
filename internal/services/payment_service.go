package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/eventreg/internal/cache"
	"example.com/eventreg/internal/gateway"
	"example.com/eventreg/internal/invoices"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/repositories"
	"example.com/eventreg/internal/search"
	"example.com/eventreg/internal/settlement"
	"example.com/eventreg/internal/tracing"
)

// ErrValidation marks synchronously rejected requests: no state mutation has
// occurred and the caller should fix the input.
var ErrValidation = errors.New("validation error")

const gatewayProvider = "midtrans"

// paymentStore is the payment access the service needs.
type paymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdateStatusCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected []models.PaymentStatus, target models.PaymentStatus, fields map[string]interface{}) (bool, error)
	HasCompletedForBatch(ctx context.Context, batchID uuid.UUID) (bool, error)
}

// batchStore is the batch access the service needs.
type batchStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

// webhookStore is the gateway payload audit trail.
type webhookStore interface {
	Record(ctx context.Context, event *models.GatewayWebhookEvent) error
	GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*models.GatewayWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// schoolStore resolves schools for settlement side effects.
type schoolStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.School, error)
}

// eventStore resolves events for settlement side effects.
type eventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// PaymentOrder is the result of creating an online payment attempt.
type PaymentOrder struct {
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	Token       string          `json:"token,omitempty"`
}

// PaymentService drives payment attempts through their state machine. All
// status mutations funnel through the settlement transitioner.
type PaymentService struct {
	payments     paymentStore
	batches      batchStore
	schools      schoolStore
	events       eventStore
	webhooks     webhookStore
	transitioner settlement.Transitioner
	adapter      gateway.Adapter
	invoices     *invoices.Generator
	elastic      *search.ElasticClient
	cache        *cache.RedisCache
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	transitioner settlement.Transitioner,
	adapter gateway.Adapter,
	invoiceGenerator *invoices.Generator,
	elasticClient *search.ElasticClient,
	redisCache *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *PaymentService {
	return &PaymentService{
		payments:     repositories.NewPaymentRepository(db, readOnlyDB),
		batches:      repositories.NewBatchRepository(db, readOnlyDB),
		schools:      repositories.NewSchoolRepository(db, readOnlyDB),
		events:       repositories.NewEventRepository(db, readOnlyDB),
		webhooks:     repositories.NewWebhookEventRepository(db, readOnlyDB),
		transitioner: transitioner,
		adapter:      adapter,
		invoices:     invoiceGenerator,
		elastic:      elasticClient,
		cache:        redisCache,
		metrics:      metricsCollector,
		tracer:       tracer,
	}
}

// CreateAttempt opens a new payment attempt against a batch. A batch with a
// currently completed payment admits no further attempts; a fresh attempt
// after a failed or refunded one is allowed.
func (s *PaymentService) CreateAttempt(ctx context.Context, batchID uuid.UUID, mode models.PaymentMode) (*PaymentOrder, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	completed, err := s.payments.HasCompletedForBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	if completed {
		return nil, errors.Wrapf(settlement.ErrConflict, "batch %s already has a completed payment", batch.Reference)
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		BatchID:     batch.ID,
		SchoolID:    batch.SchoolID,
		EventID:     batch.EventID,
		Amount:      batch.TotalAmount,
		Currency:    batch.Currency,
		Status:      models.PaymentPending,
		PaymentMode: mode,
	}

	if mode == models.PaymentModeOnline {
		orderID := fmt.Sprintf("ORD-%s", uuid.New().String())
		payment.GatewayOrderID = &orderID
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	order := &PaymentOrder{Payment: payment}

	if mode == models.PaymentModeOnline {
		school, err := s.schools.GetByID(ctx, batch.SchoolID)
		if err != nil {
			return nil, err
		}
		event, err := s.events.GetByID(ctx, batch.EventID)
		if err != nil {
			return nil, err
		}

		gatewayOrder, err := s.adapter.CreateOrder(ctx, payment, school, event)
		if err != nil {
			// Gateway failures are recorded on the attempt so the school can
			// retry with a fresh one.
			s.recordGatewayFailure(ctx, payment, "order_creation_failed", err.Error())
			return nil, errors.Wrap(err, "failed to create gateway order")
		}
		order.RedirectURL = gatewayOrder.RedirectURL
		order.Token = gatewayOrder.Token

		if s.cache != nil {
			if err := s.cache.Set(ctx, cache.PaymentOrderCacheKey(gatewayOrder.OrderID), payment.ID.String(), time.Hour); err != nil {
				log.Debug().Err(err).Msg("Failed to cache gateway order mapping")
			}
		}
	}

	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("batch_id", batch.ID.String()).
		Str("mode", string(mode)).
		Float64("amount", payment.Amount).
		Msg("Payment attempt created")

	return order, nil
}

// ProcessNotification is the single funnel for gateway notifications, whether
// delivered over the HTTP webhook or the message queue. Deliveries are
// at-least-once; the guarded transition makes redelivery a safe no-op.
func (s *PaymentService) ProcessNotification(ctx context.Context, payload []byte) error {
	s.metrics.IncrementCounter(metrics.CounterWebhooksReceived)

	txn := s.tracer.StartTransaction("process-gateway-notification")
	defer s.tracer.EndTransaction(txn)

	notification, err := s.adapter.ParseNotification(payload)
	if err != nil {
		return errors.Wrap(ErrValidation, err.Error())
	}

	// Signature verification precedes any state mutation.
	if !s.adapter.VerifySignature(notification) {
		log.Warn().Str("order_id", notification.OrderID).Msg("Gateway notification signature mismatch")
		return errors.Wrap(ErrValidation, "invalid gateway signature")
	}

	s.tracer.AddAttribute(txn, "order_id", notification.OrderID)
	s.tracer.AddAttribute(txn, "gateway_status", notification.Status)

	auditEvent := &models.GatewayWebhookEvent{
		Provider:        gatewayProvider,
		ProviderEventID: providerEventID(notification),
		EventType:       notification.Status,
		Payload:         notification.Raw,
		SignatureValid:  true,
	}
	if err := s.webhooks.Record(ctx, auditEvent); err != nil {
		if !errors.Is(err, repositories.ErrDuplicate) {
			return err
		}

		existing, lookupErr := s.webhooks.GetByProviderEventID(ctx, gatewayProvider, auditEvent.ProviderEventID)
		if lookupErr != nil {
			return lookupErr
		}
		if existing.Processed() {
			// Redelivery of a notification whose transition already went
			// through.
			s.metrics.IncrementCounter(metrics.CounterWebhooksDuplicate)
			log.Info().
				Str("order_id", notification.OrderID).
				Str("status", notification.Status).
				Msg("Duplicate gateway notification, ignoring")
			return nil
		}

		// The first delivery was audited but its transition did not
		// complete; the guarded transition makes reprocessing safe.
		auditEvent.ID = existing.ID
		log.Info().
			Str("order_id", notification.OrderID).
			Str("status", notification.Status).
			Msg("Reprocessing gateway notification after incomplete delivery")
	}

	payment, err := s.lookupByOrderID(ctx, notification.OrderID)
	if err != nil {
		s.markWebhook(ctx, auditEvent.ID, err)
		return err
	}

	target := s.adapter.MapStatus(notification)
	err = s.applyGatewayStatus(ctx, payment, notification, target)
	s.markWebhook(ctx, auditEvent.ID, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
	}
	return err
}

// ProcessQueueMessage adapts a Service Bus message into the notification
// funnel for the worker.
func (s *PaymentService) ProcessQueueMessage(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error {
	span := s.tracer.StartSpan("process-queued-notification", txn)
	defer span.End()

	err := s.ProcessNotification(ctx, message.Body)
	if err != nil && errors.Is(err, ErrValidation) {
		// A malformed or badly signed message will never become valid;
		// completing it keeps the queue from redelivering garbage.
		log.Warn().Err(err).Str("message_id", message.MessageID).Msg("Dropping invalid gateway notification message")
		return nil
	}
	return err
}

// applyGatewayStatus performs the guarded transition a notification asks for.
func (s *PaymentService) applyGatewayStatus(ctx context.Context, payment *models.Payment, n *gateway.Notification, target models.PaymentStatus) error {
	switch target {
	case models.PaymentCompleted:
		return s.settle(ctx, payment, models.BatchPaymentCompleted, map[string]interface{}{
			"gateway_payment_id": n.TransactionID,
		})

	case models.PaymentFailed:
		return s.fail(ctx, payment, n.Status, fmt.Sprintf("gateway reported %s", n.Status))

	case models.PaymentProcessing:
		_, err := s.transitioner.Transition(ctx, settlement.Request{
			PaymentID:     payment.ID,
			Expected:      []models.PaymentStatus{models.PaymentPending},
			Target:        models.PaymentProcessing,
			PaymentFields: map[string]interface{}{"gateway_payment_id": n.TransactionID},
			SyncBatch:     true,
			BatchID:       payment.BatchID,
			BatchExpected: []models.BatchPaymentStatus{models.BatchPaymentPending},
			BatchTarget:   models.BatchPaymentProcessing,
		})
		if err != nil {
			if errors.Is(err, settlement.ErrConflict) {
				// A processing notification that arrives after settlement is
				// stale, not an error.
				log.Info().Str("payment_id", payment.ID.String()).Msg("Stale processing notification ignored")
				return nil
			}
			return err
		}
		s.invalidateBatchCache(ctx, payment.BatchID)
		return nil

	case models.PaymentRefunded:
		return s.refundTransition(ctx, payment, models.RefundData{
			Reason:     fmt.Sprintf("gateway reported %s", n.Status),
			RefundedAt: time.Now(),
		})

	default:
		return errors.Errorf("unhandled payment target status %s", target)
	}
}

// settle moves a payment to completed and the batch mirror to its settled
// state in one guarded operation, then runs post-settlement side effects
// exactly once.
func (s *PaymentService) settle(ctx context.Context, payment *models.Payment, batchTarget models.BatchPaymentStatus, fields map[string]interface{}) error {
	started := time.Now()

	result, err := s.transitioner.Transition(ctx, settlement.Request{
		PaymentID: payment.ID,
		Expected: []models.PaymentStatus{
			models.PaymentPending, models.PaymentProcessing, models.PaymentPendingVerification,
		},
		Target:        models.PaymentCompleted,
		PaymentFields: fields,
		SyncBatch:     true,
		BatchID:       payment.BatchID,
		BatchExpected: []models.BatchPaymentStatus{
			models.BatchPaymentPending, models.BatchPaymentProcessing, models.BatchPaymentPendingVerification,
		},
		BatchTarget: batchTarget,
	})
	if err != nil {
		if errors.Is(err, settlement.ErrConflict) {
			s.metrics.IncrementCounter(metrics.CounterTransitionConflicts)
		}
		return err
	}

	s.metrics.RecordTimer("settlement", time.Since(started))

	if !result.Applied {
		// Already settled by a concurrent delivery; side effects already ran.
		log.Info().Str("payment_id", payment.ID.String()).Msg("Payment already settled, notification is a no-op")
		return nil
	}

	s.metrics.IncrementCounter(metrics.CounterPaymentsCompleted)
	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("batch_id", payment.BatchID.String()).
		Float64("amount", payment.Amount).
		Msg("Payment settled")

	s.runSettlementSideEffects(ctx, payment)
	return nil
}

// fail moves a payment to failed, recording the gateway's error details.
func (s *PaymentService) fail(ctx context.Context, payment *models.Payment, code, description string) error {
	result, err := s.transitioner.Transition(ctx, settlement.Request{
		PaymentID: payment.ID,
		Expected: []models.PaymentStatus{
			models.PaymentPending, models.PaymentProcessing, models.PaymentPendingVerification,
		},
		Target: models.PaymentFailed,
		PaymentFields: map[string]interface{}{
			"error_code":        code,
			"error_description": description,
		},
		SyncBatch:     true,
		BatchID:       payment.BatchID,
		BatchExpected: []models.BatchPaymentStatus{
			models.BatchPaymentPending, models.BatchPaymentProcessing, models.BatchPaymentPendingVerification,
		},
		BatchTarget: models.BatchPaymentFailed,
	})
	if err != nil {
		if errors.Is(err, settlement.ErrConflict) {
			s.metrics.IncrementCounter(metrics.CounterTransitionConflicts)
		}
		return err
	}

	if result.Applied {
		s.metrics.IncrementCounter(metrics.CounterPaymentsFailed)
		s.invalidateBatchCache(ctx, payment.BatchID)
		log.Info().
			Str("payment_id", payment.ID.String()).
			Str("error_code", code).
			Msg("Payment failed")
	}
	return nil
}

// SubmitReceipt attaches an uploaded receipt to an offline payment. It does
// not transition the payment: the school must explicitly submit for review.
func (s *PaymentService) SubmitReceipt(ctx context.Context, paymentID uuid.UUID, receiptURL, transactionRef string) error {
	if receiptURL == "" {
		return errors.Wrap(ErrValidation, "receipt URL is required")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.PaymentMode != models.PaymentModeOffline {
		return errors.Wrap(ErrValidation, "receipts apply to offline payments only")
	}
	if payment.Status != models.PaymentPending {
		return errors.Wrapf(settlement.ErrConflict, "payment %s is %s", paymentID, payment.Status)
	}

	details := models.OfflinePaymentDetails{
		ReceiptURL:     receiptURL,
		TransactionRef: transactionRef,
	}
	if err := payment.SetOfflinePaymentDetails(details); err != nil {
		return err
	}

	// Receipt attachment is not a status transition; write the details only.
	ok, err := s.payments.UpdateStatusCAS(ctx, nil, payment.ID,
		[]models.PaymentStatus{models.PaymentPending}, models.PaymentPending,
		map[string]interface{}{"offline_details": payment.OfflineDetails})
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(settlement.ErrConflict, "payment %s changed state during receipt upload", paymentID)
	}

	log.Info().Str("payment_id", paymentID.String()).Msg("Offline receipt attached")
	return nil
}

// SubmitForReview moves an offline payment into the admin verification queue.
func (s *PaymentService) SubmitForReview(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.PaymentMode != models.PaymentModeOffline {
		return errors.Wrap(ErrValidation, "only offline payments are submitted for review")
	}

	details, err := payment.OfflinePaymentDetails()
	if err != nil {
		return err
	}
	if details == nil || details.ReceiptURL == "" {
		return errors.Wrap(ErrValidation, "a receipt must be attached before submitting for review")
	}

	result, err := s.transitioner.Transition(ctx, settlement.Request{
		PaymentID:     payment.ID,
		Expected:      []models.PaymentStatus{models.PaymentPending},
		Target:        models.PaymentPendingVerification,
		SyncBatch:     true,
		BatchID:       payment.BatchID,
		BatchExpected: []models.BatchPaymentStatus{models.BatchPaymentPending},
		BatchTarget:   models.BatchPaymentPendingVerification,
	})
	if err != nil {
		return err
	}

	if result.Applied {
		s.invalidateBatchCache(ctx, payment.BatchID)
		log.Info().Str("payment_id", paymentID.String()).Msg("Offline payment submitted for verification")
	}
	return nil
}

// Verify is the admin confirmation of an offline payment. It settles the
// payment and flips the batch mirror to "verified" in one guarded operation.
// A payment in any state other than pending/pending_verification is a
// conflict, not a silent no-op.
func (s *PaymentService) Verify(ctx context.Context, paymentID, verifierID uuid.UUID, notes string) error {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if payment.PaymentMode != models.PaymentModeOffline {
		return errors.Wrap(ErrValidation, "only offline payments are verified manually")
	}
	if payment.Status != models.PaymentPending && payment.Status != models.PaymentPendingVerification {
		return errors.Wrapf(settlement.ErrConflict, "payment %s is %s, cannot verify", paymentID, payment.Status)
	}

	details, err := payment.OfflinePaymentDetails()
	if err != nil {
		return err
	}
	if details == nil {
		details = &models.OfflinePaymentDetails{}
	}
	now := time.Now()
	details.VerifierNotes = notes
	details.VerifiedBy = &verifierID
	details.VerifiedAt = &now
	if err := payment.SetOfflinePaymentDetails(*details); err != nil {
		return err
	}

	return s.settle(ctx, payment, models.BatchPaymentVerified, map[string]interface{}{
		"offline_details": payment.OfflineDetails,
	})
}

// Reject is the admin rejection of a pending payment. It is mode-agnostic:
// offline payments are rejected after review, and a stuck online attempt can
// be rejected to unblock the batch. The reason is mandatory and is shown to
// the school so it can correct and resubmit.
func (s *PaymentService) Reject(ctx context.Context, paymentID, verifierID uuid.UUID, reason string) error {
	if reason == "" {
		return errors.Wrap(ErrValidation, "a rejection reason is required")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if payment.Status != models.PaymentPending && payment.Status != models.PaymentPendingVerification {
		return errors.Wrapf(settlement.ErrConflict, "payment %s is %s, cannot reject", paymentID, payment.Status)
	}

	return s.fail(ctx, payment, "verification_rejected", reason)
}

// Refund moves a completed payment to refunded. The batch mirror returns to
// pending so a fresh payment attempt can follow; the refunded payment no
// longer counts toward the one-completed-payment invariant.
func (s *PaymentService) Refund(ctx context.Context, paymentID, adminID uuid.UUID, reason string) error {
	if reason == "" {
		return errors.Wrap(ErrValidation, "a refund reason is required")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	return s.refundTransition(ctx, payment, models.RefundData{
		Reason:     reason,
		RefundedBy: adminID,
		RefundedAt: time.Now(),
	})
}

func (s *PaymentService) refundTransition(ctx context.Context, payment *models.Payment, data models.RefundData) error {
	if err := payment.SetRefundData(data); err != nil {
		return err
	}

	result, err := s.transitioner.Transition(ctx, settlement.Request{
		PaymentID:     payment.ID,
		Expected:      []models.PaymentStatus{models.PaymentCompleted},
		Target:        models.PaymentRefunded,
		PaymentFields: map[string]interface{}{"refund": payment.Refund},
		SyncBatch:     true,
		BatchID:       payment.BatchID,
		BatchExpected: []models.BatchPaymentStatus{models.BatchPaymentCompleted, models.BatchPaymentVerified},
		BatchTarget:   models.BatchPaymentPending,
	})
	if err != nil {
		return err
	}

	if result.Applied {
		s.invalidateBatchCache(ctx, payment.BatchID)
		log.Info().
			Str("payment_id", payment.ID.String()).
			Str("reason", data.Reason).
			Msg("Payment refunded")
	}
	return nil
}

// GetPayment returns a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// markWebhook flags the audit row as processed, keeping any processing error
// alongside it for operators.
func (s *PaymentService) markWebhook(ctx context.Context, eventID uint, processErr error) {
	msg := ""
	if processErr != nil {
		msg = processErr.Error()
	}
	if err := s.webhooks.MarkProcessed(ctx, eventID, msg); err != nil {
		log.Warn().Err(err).Uint("webhook_event_id", eventID).Msg("Failed to mark webhook event processed")
	}
}

// recordGatewayFailure stores gateway error details on a pending attempt.
func (s *PaymentService) recordGatewayFailure(ctx context.Context, payment *models.Payment, code, description string) {
	if err := s.fail(ctx, payment, code, description); err != nil {
		log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("Failed to record gateway failure")
	}
}

// runSettlementSideEffects generates the invoice and feeds the audit index
// after a first-time settlement. Both are downstream of settlement: failures
// are logged for retry, never rolled back into the payment state machine.
func (s *PaymentService) runSettlementSideEffects(ctx context.Context, payment *models.Payment) {
	if s.invoices != nil {
		if _, err := s.invoices.Generate(ctx, payment.BatchID); err != nil {
			log.Error().
				Err(err).
				Str("batch_id", payment.BatchID.String()).
				Msg("Invoice generation failed after settlement, bulk sweep will retry")
		} else {
			s.metrics.IncrementCounter(metrics.CounterInvoicesGenerated)
		}
	}

	if s.elastic != nil {
		batch, err := s.batches.GetByID(ctx, payment.BatchID)
		if err == nil {
			school, schoolErr := s.schools.GetByID(ctx, batch.SchoolID)
			event, eventErr := s.events.GetByID(ctx, batch.EventID)
			if schoolErr == nil && eventErr == nil {
				settled, getErr := s.payments.GetByID(ctx, payment.ID)
				if getErr != nil {
					settled = payment
				}
				if indexErr := s.elastic.IndexSettlement(ctx, settled, batch, school, event); indexErr != nil {
					log.Warn().Err(indexErr).Str("payment_id", payment.ID.String()).Msg("Failed to index settlement")
				}
			}
		}
	}

	s.invalidateBatchCache(ctx, payment.BatchID)
}

// providerEventID is the audit dedupe key. The fraud status is part of it:
// the gateway reports capture+challenge and later capture+accept for the
// same order, and the accept must not be mistaken for a redelivery.
func providerEventID(n *gateway.Notification) string {
	if n.FraudStatus != "" {
		return fmt.Sprintf("%s:%s:%s", n.OrderID, n.Status, n.FraudStatus)
	}
	return fmt.Sprintf("%s:%s", n.OrderID, n.Status)
}

// lookupByOrderID resolves a notification's payment, preferring the cached
// order mapping written at attempt creation. Any CAS the caller performs
// re-checks the live status, so a stale cached read cannot corrupt state.
func (s *PaymentService) lookupByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	if s.cache != nil {
		var cachedID string
		if err := s.cache.Get(ctx, cache.PaymentOrderCacheKey(orderID), &cachedID); err == nil {
			if id, parseErr := uuid.Parse(cachedID); parseErr == nil {
				if payment, getErr := s.payments.GetByID(ctx, id); getErr == nil {
					return payment, nil
				}
			}
		}
	}
	return s.payments.GetByGatewayOrderID(ctx, orderID)
}

// invalidateBatchCache drops the cached batch after its payment status moved.
func (s *PaymentService) invalidateBatchCache(ctx context.Context, batchID uuid.UUID) {
	if s.cache == nil {
		return
	}
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		log.Debug().Err(err).Str("batch_id", batchID.String()).Msg("Failed to load batch for cache invalidation")
		return
	}
	if err := s.cache.Delete(ctx, cache.BatchCacheKey(batch.Reference)); err != nil {
		log.Debug().Err(err).Str("batch_reference", batch.Reference).Msg("Failed to invalidate batch cache")
	}
}
