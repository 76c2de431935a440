// Package certificates is the client for the external certificate issuance
// service. Issuance is downstream of payment settlement: failures here are
// reported to the caller but never fed back into the payment state machine.
package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/models"
)

// StudentRecord is the per-registration payload sent for issuance.
type StudentRecord struct {
	RegistrationID string   `json:"registration_id"`
	StudentName    string   `json:"student_name"`
	EventName      string   `json:"event_name"`
	SchoolName     string   `json:"school_name"`
	Score          *float64 `json:"score,omitempty"`
	Rank           *int     `json:"rank,omitempty"`
	Award          *string  `json:"award,omitempty"`
}

// Client talks to one region's certificate service.
type Client struct {
	cfg        config.RegionCertificateConfig
	httpClient *http.Client
}

// NewClient creates a certificate client for a region configuration.
func NewClient(cfg config.RegionCertificateConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AutoGenerate reports whether this region issues certificates automatically
// in the background sweep.
func (c *Client) AutoGenerate() bool {
	return c.cfg.AutoGenerate
}

// TemplateID returns the region's configured certificate template.
func (c *Client) TemplateID() string {
	return c.cfg.TemplateID
}

// HealthCheck verifies the certificate service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HealthCheckURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build health check request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "certificate service health check failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("certificate service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// ValidateKey verifies the configured API key is accepted.
func (c *Client) ValidateKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.KeyValidationURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build key validation request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "certificate key validation failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.New("certificate service rejected API key")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("certificate key validation returned status %d", resp.StatusCode)
	}
	return nil
}

// IssueCertificate requests a certificate for one student and returns the
// issued certificate URL.
func (c *Client) IssueCertificate(ctx context.Context, record StudentRecord, templateID string) (string, error) {
	if templateID == "" {
		templateID = c.cfg.TemplateID
	}

	body, err := json.Marshal(struct {
		StudentRecord
		TemplateID string `json:"template_id"`
	}{StudentRecord: record, TemplateID: templateID})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal certificate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.IssuanceURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build certificate request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "certificate issuance request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("certificate issuance returned status %d", resp.StatusCode)
	}

	var parsed struct {
		CertificateURL string `json:"certificate_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "failed to decode certificate response")
	}
	if parsed.CertificateURL == "" {
		return "", errors.New("certificate service returned empty certificate URL")
	}

	return parsed.CertificateURL, nil
}

// RecordFor builds the issuance payload from pipeline records.
func RecordFor(registration *models.Registration, event *models.Event, school *models.School) StudentRecord {
	return StudentRecord{
		RegistrationID: registration.ID.String(),
		StudentName:    registration.StudentName,
		EventName:      event.Name,
		SchoolName:     school.Name,
		Score:          registration.ResultScore,
		Rank:           registration.ResultRank,
		Award:          registration.ResultAward,
	}
}
