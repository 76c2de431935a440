package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/eventreg/internal/services"
	"example.com/eventreg/internal/tracing"
)

// PaymentHandler handles payment lifecycle HTTP requests
type PaymentHandler struct {
	payments *services.PaymentService
	tracer   tracing.Tracer
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, tracer tracing.Tracer) *PaymentHandler {
	return &PaymentHandler{payments: payments, tracer: tracer}
}

// RegisterRoutes registers the payment routes
func (h *PaymentHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/payments")
	{
		group.GET("/:id", h.GetPayment)
		group.POST("/:id/receipt", h.SubmitReceipt)
		group.POST("/:id/submit-for-review", h.SubmitForReview)
	}

	admin := router.Group("/api/v1/admin/payments")
	{
		admin.POST("/:id/verify", h.Verify)
		admin.POST("/:id/reject", h.Reject)
		admin.POST("/:id/refund", h.Refund)
	}
}

func paymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return uuid.Nil, false
	}
	return id, true
}

// GetPayment returns a payment attempt by ID
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// SubmitReceiptRequest carries the uploaded receipt for an offline payment.
type SubmitReceiptRequest struct {
	ReceiptURL     string `json:"receipt_url" binding:"required"`
	TransactionRef string `json:"transaction_ref"`
}

// SubmitReceipt attaches a bank-transfer receipt to an offline payment
func (h *PaymentHandler) SubmitReceipt(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}

	var req SubmitReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payments.SubmitReceipt(c.Request.Context(), id, req.ReceiptURL, req.TransactionRef); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SubmitForReview queues an offline payment for admin verification
func (h *PaymentHandler) SubmitForReview(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}

	if err := h.payments.SubmitForReview(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// VerifyRequest carries the admin's confirmation of an offline payment.
type VerifyRequest struct {
	VerifierID uuid.UUID `json:"verifier_id" binding:"required"`
	Notes      string    `json:"notes"`
}

// Verify confirms an offline payment and settles its batch
func (h *PaymentHandler) Verify(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-verify-payment")
	defer h.tracer.EndTransaction(txn)

	id, ok := paymentID(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payments.Verify(c.Request.Context(), id, req.VerifierID, req.Notes); err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RejectRequest carries the admin's rejection. The reason is mandatory.
type RejectRequest struct {
	VerifierID uuid.UUID `json:"verifier_id" binding:"required"`
	Reason     string    `json:"reason" binding:"required"`
}

// Reject declines an offline payment with a reason shown to the school
func (h *PaymentHandler) Reject(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payments.Reject(c.Request.Context(), id, req.VerifierID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RefundRequest carries the admin's refund instruction.
type RefundRequest struct {
	AdminID uuid.UUID `json:"admin_id" binding:"required"`
	Reason  string    `json:"reason" binding:"required"`
}

// Refund moves a completed payment to refunded
func (h *PaymentHandler) Refund(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-refund-payment")
	defer h.tracer.EndTransaction(txn)

	id, ok := paymentID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payments.Refund(c.Request.Context(), id, req.AdminID, req.Reason); err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
