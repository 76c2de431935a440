package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/certificates"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/repositories"
)

// certificateRegistrationStore is the registration access the certificate
// service needs.
type certificateRegistrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	SetResult(ctx context.Context, id uuid.UUID, score *float64, rank *int, award, remarks *string) error
	SetCertificateURL(ctx context.Context, id uuid.UUID, url string) (bool, error)
	ListCertifiable(ctx context.Context, limit int) ([]models.Registration, error)
}

// certificateConfigStore is the per-event override access the certificate
// service needs.
type certificateConfigStore interface {
	GetByEventAndRegion(ctx context.Context, eventID uuid.UUID, region string) (*models.CertificateConfig, error)
	Upsert(ctx context.Context, cfg *models.CertificateConfig) error
}

// CertificateService triggers certificate issuance for settled, result-bearing
// registrations. Issuance talks to the per-region certificate platform, with
// per-event overrides taking precedence; its failures never touch payment or
// batch state.
type CertificateService struct {
	registrations certificateRegistrationStore
	batches       batchStore
	schools       schoolStore
	events        eventStore
	configs       certificateConfigStore
	clients       map[string]*certificates.Client
	metrics       *metrics.Metrics
	timeout       time.Duration
	sweepSize     int
}

// NewCertificateService creates a new certificate service
func NewCertificateService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	cfg config.CertificatesConfig,
	metricsCollector *metrics.Metrics,
) *CertificateService {
	return &CertificateService{
		registrations: repositories.NewRegistrationRepository(db, readOnlyDB),
		batches:       repositories.NewBatchRepository(db, readOnlyDB),
		schools:       repositories.NewSchoolRepository(db, readOnlyDB),
		events:        repositories.NewEventRepository(db, readOnlyDB),
		configs:       repositories.NewCertificateConfigRepository(db, readOnlyDB),
		clients: map[string]*certificates.Client{
			config.RegionIndia:         certificates.NewClient(cfg.ForRegion(config.RegionIndia), cfg.Timeout),
			config.RegionInternational: certificates.NewClient(cfg.ForRegion(config.RegionInternational), cfg.Timeout),
		},
		metrics:   metricsCollector,
		timeout:   cfg.Timeout,
		sweepSize: cfg.SweepSize,
	}
}

// SetEventConfig stores an event's certificate platform override for a region.
func (s *CertificateService) SetEventConfig(ctx context.Context, cfg *models.CertificateConfig) error {
	if cfg.Region != config.RegionIndia && cfg.Region != config.RegionInternational {
		return errors.Wrapf(ErrValidation, "unknown certificate region %q", cfg.Region)
	}
	if cfg.IssuanceURL == "" || cfg.APIKey == "" || cfg.TemplateID == "" {
		return errors.Wrap(ErrValidation, "issuance URL, API key and template ID are required")
	}
	if _, err := s.events.GetByID(ctx, cfg.EventID); err != nil {
		return err
	}
	return s.configs.Upsert(ctx, cfg)
}

// AttachResult records a registration's post-event result. Results are what
// make a registration eligible for a certificate.
func (s *CertificateService) AttachResult(ctx context.Context, registrationID uuid.UUID, score *float64, rank *int, award, remarks *string) (*models.Registration, error) {
	if score == nil && rank == nil && (award == nil || *award == "") {
		return nil, errors.Wrap(ErrValidation, "a result needs at least a score, a rank or an award")
	}

	if err := s.registrations.SetResult(ctx, registrationID, score, rank, award, remarks); err != nil {
		return nil, err
	}
	return s.registrations.GetByID(ctx, registrationID)
}

// Issue triggers certificate generation for a single registration. The batch
// must be settled and the registration must carry a result; an already-issued
// certificate is returned as-is.
func (s *CertificateService) Issue(ctx context.Context, registrationID uuid.UUID) (string, error) {
	registration, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return "", err
	}

	if registration.CertificateURL != nil && *registration.CertificateURL != "" {
		return *registration.CertificateURL, nil
	}
	if !registration.HasResult() {
		return "", errors.Wrap(ErrValidation, "registration has no result yet")
	}

	batch, err := s.batches.GetByID(ctx, registration.BatchID)
	if err != nil {
		return "", err
	}
	if !batch.PaymentStatus.Settled() {
		return "", errors.Wrapf(ErrValidation, "batch %s payment is %s, certificates require a settled payment", batch.Reference, batch.PaymentStatus)
	}

	school, err := s.schools.GetByID(ctx, batch.SchoolID)
	if err != nil {
		return "", err
	}
	event, err := s.events.GetByID(ctx, batch.EventID)
	if err != nil {
		return "", err
	}

	return s.issue(ctx, registration, batch, school, event)
}

// Sweep finds registrations that are eligible for a certificate but do not
// have one yet and issues them, skipping regions with auto-generation
// disabled. Failures are logged and retried on the next sweep.
func (s *CertificateService) Sweep(ctx context.Context) error {
	registrations, err := s.registrations.ListCertifiable(ctx, s.sweepSize)
	if err != nil {
		return err
	}
	if len(registrations) == 0 {
		return nil
	}

	issued := 0
	for i := range registrations {
		registration := &registrations[i]

		batch, err := s.batches.GetByID(ctx, registration.BatchID)
		if err != nil {
			log.Error().Err(err).Str("registration_id", registration.ID.String()).Msg("Certificate sweep failed to load batch")
			continue
		}
		school, err := s.schools.GetByID(ctx, batch.SchoolID)
		if err != nil {
			log.Error().Err(err).Str("registration_id", registration.ID.String()).Msg("Certificate sweep failed to load school")
			continue
		}
		event, err := s.events.GetByID(ctx, batch.EventID)
		if err != nil {
			log.Error().Err(err).Str("registration_id", registration.ID.String()).Msg("Certificate sweep failed to load event")
			continue
		}

		if !s.clientFor(ctx, event, school).AutoGenerate() {
			continue
		}

		if _, err := s.issue(ctx, registration, batch, school, event); err != nil {
			log.Error().Err(err).Str("registration_id", registration.ID.String()).Msg("Certificate issuance failed")
			continue
		}
		issued++
	}

	log.Info().Int("eligible", len(registrations)).Int("issued", issued).Msg("Certificate sweep finished")
	return nil
}

// ValidateKeys checks each region's API key. A rejected key is a
// configuration problem that would fail every issuance; it is reported but
// does not stop the worker.
func (s *CertificateService) ValidateKeys(ctx context.Context) {
	for region, client := range s.clients {
		if err := client.ValidateKey(ctx); err != nil {
			log.Warn().Err(err).Str("region", region).Msg("Certificate platform rejected the API key")
		}
	}
}

// HealthCheck pings each region's certificate platform and records the result.
func (s *CertificateService) HealthCheck(ctx context.Context) {
	for region, client := range s.clients {
		err := client.HealthCheck(ctx)
		s.metrics.SetHealthCheck("certificates_"+strings.ToLower(region), err == nil)
		if err != nil {
			log.Warn().Err(err).Str("region", region).Msg("Certificate platform health check failed")
		}
	}
}

func (s *CertificateService) issue(ctx context.Context, registration *models.Registration, batch *models.Batch, school *models.School, event *models.Event) (string, error) {
	client := s.clientFor(ctx, event, school)
	record := certificates.RecordFor(registration, event, school)

	url, err := client.IssueCertificate(ctx, record, client.TemplateID())
	if err != nil {
		s.metrics.IncrementCounter(metrics.CounterCertificateFailures)
		return "", err
	}

	ok, err := s.registrations.SetCertificateURL(ctx, registration.ID, url)
	if err != nil {
		return "", err
	}
	if !ok {
		// A concurrent issuance won; keep its URL.
		current, err := s.registrations.GetByID(ctx, registration.ID)
		if err != nil {
			return "", err
		}
		if current.CertificateURL != nil {
			return *current.CertificateURL, nil
		}
		return "", errors.Errorf("failed to record certificate for registration %s", registration.ID)
	}

	log.Info().
		Str("registration_id", registration.ID.String()).
		Str("batch_reference", batch.Reference).
		Msg("Certificate issued")

	return url, nil
}

// clientFor resolves the certificate client for an event and school. An
// event's stored override for the school's region wins over the platform
// configuration, so each event can carry its own template and credentials.
func (s *CertificateService) clientFor(ctx context.Context, event *models.Event, school *models.School) *certificates.Client {
	region := regionFor(school)

	if s.configs != nil {
		override, err := s.configs.GetByEventAndRegion(ctx, event.ID, region)
		if err == nil {
			return certificates.NewClient(config.RegionCertificateConfig{
				WebsiteURL:       override.WebsiteURL,
				IssuanceURL:      override.IssuanceURL,
				HealthCheckURL:   override.HealthCheckURL,
				KeyValidationURL: override.KeyValidationURL,
				APIKey:           override.APIKey,
				TemplateID:       override.TemplateID,
				AutoGenerate:     override.AutoGenerate,
			}, s.timeout)
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Err(err).
				Str("event_id", event.ID.String()).
				Str("region", region).
				Msg("Failed to load event certificate config, using platform defaults")
		}
	}

	return s.clients[region]
}

// regionFor maps a school's country to its certificate platform region.
func regionFor(school *models.School) string {
	if strings.EqualFold(school.Country, "india") {
		return config.RegionIndia
	}
	return config.RegionInternational
}
