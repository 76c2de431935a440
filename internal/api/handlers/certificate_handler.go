package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/services"
)

// CertificateHandler handles manual certificate issuance requests
type CertificateHandler struct {
	certificates *services.CertificateService
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(certificates *services.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// AttachResultRequest carries a registration's post-event result
type AttachResultRequest struct {
	Score   *float64 `json:"score"`
	Rank    *int     `json:"rank"`
	Award   *string  `json:"award"`
	Remarks *string  `json:"remarks"`
}

// EventCertificateConfigRequest carries an event's certificate platform
// override for one region
type EventCertificateConfigRequest struct {
	Region           string `json:"region" binding:"required,oneof=india international"`
	WebsiteURL       string `json:"website_url"`
	IssuanceURL      string `json:"issuance_url" binding:"required,url"`
	HealthCheckURL   string `json:"health_check_url"`
	KeyValidationURL string `json:"key_validation_url"`
	APIKey           string `json:"api_key" binding:"required"`
	TemplateID       string `json:"template_id" binding:"required"`
	AutoGenerate     bool   `json:"auto_generate"`
}

// RegisterRoutes registers the certificate routes
func (h *CertificateHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/registrations/:id/certificate", h.Issue)
	router.PUT("/api/v1/admin/registrations/:id/result", h.AttachResult)
	router.PUT("/api/v1/admin/events/:id/certificate-config", h.SetEventConfig)
}

// SetEventConfig stores an event's certificate platform override
func (h *CertificateHandler) SetEventConfig(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req EventCertificateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := &models.CertificateConfig{
		EventID:          eventID,
		Region:           req.Region,
		WebsiteURL:       req.WebsiteURL,
		IssuanceURL:      req.IssuanceURL,
		HealthCheckURL:   req.HealthCheckURL,
		KeyValidationURL: req.KeyValidationURL,
		APIKey:           req.APIKey,
		TemplateID:       req.TemplateID,
		AutoGenerate:     req.AutoGenerate,
	}
	if err := h.certificates.SetEventConfig(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// AttachResult records a post-event result for one registration
func (h *CertificateHandler) AttachResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	var req AttachResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	registration, err := h.certificates.AttachResult(c.Request.Context(), id, req.Score, req.Rank, req.Award, req.Remarks)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, registration)
}

// Issue triggers certificate generation for one registration
func (h *CertificateHandler) Issue(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	url, err := h.certificates.Issue(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate_url": url})
}
