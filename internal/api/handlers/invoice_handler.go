package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/eventreg/internal/services"
)

// InvoiceHandler handles invoice HTTP requests
type InvoiceHandler struct {
	invoices *services.InvoiceService
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// RegisterRoutes registers the invoice routes
func (h *InvoiceHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/batches/:reference/invoice")
	{
		group.POST("", h.Generate)
		group.GET("", h.Download)
	}

	admin := router.Group("/api/v1/admin")
	{
		admin.POST("/batches/:reference/invoice/regenerate", h.Regenerate)
		admin.POST("/invoices/bulk-generate", h.BulkGenerate)
	}
}

// Generate produces the invoice for a settled batch. Calling it again returns
// the existing artifact.
func (h *InvoiceHandler) Generate(c *gin.Context) {
	artifact, err := h.invoices.Generate(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if artifact.Existing {
		status = http.StatusOK
	}
	c.JSON(status, artifact)
}

// Download redirects to the invoice artifact
func (h *InvoiceHandler) Download(c *gin.Context) {
	url, err := h.invoices.DownloadURL(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Regenerate re-renders an existing invoice, keeping its number
func (h *InvoiceHandler) Regenerate(c *gin.Context) {
	artifact, err := h.invoices.Regenerate(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, artifact)
}

// BulkGenerate sweeps settled batches that are missing invoices
func (h *InvoiceHandler) BulkGenerate(c *gin.Context) {
	result, err := h.invoices.BulkGenerate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
