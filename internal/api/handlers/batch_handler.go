package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/services"
	"example.com/eventreg/internal/tracing"
)

// BatchHandler handles batch registration HTTP requests
type BatchHandler struct {
	registrations *services.RegistrationService
	payments      *services.PaymentService
	tracer        tracing.Tracer
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(registrations *services.RegistrationService, payments *services.PaymentService, tracer tracing.Tracer) *BatchHandler {
	return &BatchHandler{
		registrations: registrations,
		payments:      payments,
		tracer:        tracer,
	}
}

// RegisterRoutes registers the batch routes
func (h *BatchHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/batches")
	{
		group.POST("", h.SubmitBatch)
		group.GET("/:reference", h.GetBatch)
		group.GET("/:reference/registrations", h.ListRegistrations)
		group.POST("/:reference/payments", h.CreatePaymentAttempt)
	}
	router.DELETE("/api/v1/admin/batches/:reference", h.DeleteBatch)
}

// DeleteBatch removes a batch and its registrations. Payment records stay.
func (h *BatchHandler) DeleteBatch(c *gin.Context) {
	if err := h.registrations.DeleteBatch(c.Request.Context(), c.Param("reference")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitBatch handles a school's bulk registration submission
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-submit-batch")
	defer h.tracer.EndTransaction(txn)

	var req services.BatchSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid batch submission body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "event_id", req.EventID.String())
	h.tracer.AddAttribute(txn, "school_id", req.SchoolID.String())
	h.tracer.AddAttribute(txn, "students", len(req.Students))

	submitted, err := h.registrations.SubmitBatch(c.Request.Context(), &req)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submitted)
}

// GetBatch returns a batch by its reference
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.registrations.GetBatchByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListRegistrations returns the students inside a batch
func (h *BatchHandler) ListRegistrations(c *gin.Context) {
	batch, err := h.registrations.GetBatchByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}

	registrations, err := h.registrations.ListRegistrations(c.Request.Context(), batch.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_reference": batch.Reference, "registrations": registrations})
}

// CreatePaymentAttemptRequest selects the mode of a fresh payment attempt.
type CreatePaymentAttemptRequest struct {
	PaymentMode models.PaymentMode `json:"payment_mode" binding:"required,oneof=ONLINE OFFLINE"`
}

// CreatePaymentAttempt opens a new payment attempt against a batch
func (h *BatchHandler) CreatePaymentAttempt(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-payment-attempt")
	defer h.tracer.EndTransaction(txn)

	var req CreatePaymentAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := h.registrations.GetBatchByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.payments.CreateAttempt(c.Request.Context(), batch.ID, req.PaymentMode)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}
