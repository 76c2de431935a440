package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/certificates"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/repositories"
)

type MockCertRegistrationStore struct {
	mock.Mock
}

func (m *MockCertRegistrationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockCertRegistrationStore) SetResult(ctx context.Context, id uuid.UUID, score *float64, rank *int, award, remarks *string) error {
	args := m.Called(ctx, id, score, rank, award, remarks)
	return args.Error(0)
}

func (m *MockCertRegistrationStore) SetCertificateURL(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	args := m.Called(ctx, id, url)
	return args.Bool(0), args.Error(1)
}

func (m *MockCertRegistrationStore) ListCertifiable(ctx context.Context, limit int) ([]models.Registration, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

type MockCertConfigStore struct {
	mock.Mock
}

func (m *MockCertConfigStore) GetByEventAndRegion(ctx context.Context, eventID uuid.UUID, region string) (*models.CertificateConfig, error) {
	args := m.Called(ctx, eventID, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CertificateConfig), args.Error(1)
}

func (m *MockCertConfigStore) Upsert(ctx context.Context, cfg *models.CertificateConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func TestAttachResultRequiresSomeResultField(t *testing.T) {
	registrations := new(MockCertRegistrationStore)

	service := &CertificateService{
		registrations: registrations,
		metrics:       metrics.NewMetrics(),
	}

	remarks := "no-show"
	_, err := service.AttachResult(context.Background(), uuid.New(), nil, nil, nil, &remarks)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	registrations.AssertNotCalled(t, "SetResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttachResultPersistsAndReloads(t *testing.T) {
	registrations := new(MockCertRegistrationStore)

	id := uuid.New()
	score := 88.5
	rank := 3
	updated := &models.Registration{ID: id, ResultScore: &score, ResultRank: &rank}

	registrations.On("SetResult", mock.Anything, id, &score, &rank, (*string)(nil), (*string)(nil)).Return(nil)
	registrations.On("GetByID", mock.Anything, id).Return(updated, nil)

	service := &CertificateService{
		registrations: registrations,
		metrics:       metrics.NewMetrics(),
	}

	registration, err := service.AttachResult(context.Background(), id, &score, &rank, nil, nil)
	require.NoError(t, err)
	require.Equal(t, &score, registration.ResultScore)
	require.Equal(t, &rank, registration.ResultRank)
	registrations.AssertExpectations(t)
}

func TestIssueReturnsExistingCertificate(t *testing.T) {
	registrations := new(MockCertRegistrationStore)

	existing := "http://certs/existing.pdf"
	registration := &models.Registration{
		ID:             uuid.New(),
		CertificateURL: &existing,
	}
	registrations.On("GetByID", mock.Anything, registration.ID).Return(registration, nil)

	service := &CertificateService{
		registrations: registrations,
		metrics:       metrics.NewMetrics(),
	}

	url, err := service.Issue(context.Background(), registration.ID)
	require.NoError(t, err)
	require.Equal(t, existing, url)
}

func TestIssueRequiresResult(t *testing.T) {
	registrations := new(MockCertRegistrationStore)

	registration := &models.Registration{ID: uuid.New()}
	registrations.On("GetByID", mock.Anything, registration.ID).Return(registration, nil)

	service := &CertificateService{
		registrations: registrations,
		metrics:       metrics.NewMetrics(),
	}

	_, err := service.Issue(context.Background(), registration.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
}

func certifiableFixture() (*models.Registration, *models.Batch, *models.School, *models.Event) {
	score := 92.0
	registration := &models.Registration{
		ID:          uuid.New(),
		BatchID:     uuid.New(),
		StudentName: "Asha Rao",
		ResultScore: &score,
	}
	batch := &models.Batch{
		ID:            registration.BatchID,
		SchoolID:      uuid.New(),
		EventID:       uuid.New(),
		Reference:     "BR-AB12CD34",
		PaymentStatus: models.BatchPaymentCompleted,
	}
	school := &models.School{ID: batch.SchoolID, Name: "Springfield High", Country: "India"}
	event := &models.Event{ID: batch.EventID, Name: "Science Olympiad"}
	return registration, batch, school, event
}

func issuanceServer(t *testing.T, templateIDs *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TemplateID string `json:"template_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*templateIDs = append(*templateIDs, body.TemplateID)
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
			"certificate_url": "http://certs/issued.pdf",
		}))
	}))
}

func TestIssueUsesEventCertificateOverride(t *testing.T) {
	registrations := new(MockCertRegistrationStore)
	batches := new(MockBatchStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	configs := new(MockCertConfigStore)

	var templateIDs []string
	server := issuanceServer(t, &templateIDs)
	defer server.Close()

	registration, batch, school, event := certifiableFixture()
	override := &models.CertificateConfig{
		EventID:     event.ID,
		Region:      config.RegionIndia,
		IssuanceURL: server.URL,
		APIKey:      "event-key",
		TemplateID:  "olympiad-gold",
	}

	registrations.On("GetByID", mock.Anything, registration.ID).Return(registration, nil)
	registrations.On("SetCertificateURL", mock.Anything, registration.ID, "http://certs/issued.pdf").Return(true, nil)
	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)
	schools.On("GetByID", mock.Anything, school.ID).Return(school, nil)
	events.On("GetByID", mock.Anything, event.ID).Return(event, nil)
	configs.On("GetByEventAndRegion", mock.Anything, event.ID, config.RegionIndia).Return(override, nil)

	service := &CertificateService{
		registrations: registrations,
		batches:       batches,
		schools:       schools,
		events:        events,
		configs:       configs,
		metrics:       metrics.NewMetrics(),
	}

	url, err := service.Issue(context.Background(), registration.ID)
	require.NoError(t, err)
	require.Equal(t, "http://certs/issued.pdf", url)

	// The event's own template reached the platform, not the global default.
	require.Equal(t, []string{"olympiad-gold"}, templateIDs)
}

func TestIssueFallsBackToPlatformConfig(t *testing.T) {
	registrations := new(MockCertRegistrationStore)
	batches := new(MockBatchStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	configs := new(MockCertConfigStore)

	var templateIDs []string
	server := issuanceServer(t, &templateIDs)
	defer server.Close()

	registration, batch, school, event := certifiableFixture()

	registrations.On("GetByID", mock.Anything, registration.ID).Return(registration, nil)
	registrations.On("SetCertificateURL", mock.Anything, registration.ID, "http://certs/issued.pdf").Return(true, nil)
	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)
	schools.On("GetByID", mock.Anything, school.ID).Return(school, nil)
	events.On("GetByID", mock.Anything, event.ID).Return(event, nil)
	configs.On("GetByEventAndRegion", mock.Anything, event.ID, config.RegionIndia).Return(nil, repositories.ErrNotFound)

	service := &CertificateService{
		registrations: registrations,
		batches:       batches,
		schools:       schools,
		events:        events,
		configs:       configs,
		clients: map[string]*certificates.Client{
			config.RegionIndia: certificates.NewClient(config.RegionCertificateConfig{
				IssuanceURL: server.URL,
				APIKey:      "platform-key",
				TemplateID:  "platform-default",
			}, 0),
		},
		metrics: metrics.NewMetrics(),
	}

	url, err := service.Issue(context.Background(), registration.ID)
	require.NoError(t, err)
	require.Equal(t, "http://certs/issued.pdf", url)
	require.Equal(t, []string{"platform-default"}, templateIDs)
}

func TestSetEventConfigValidatesRegion(t *testing.T) {
	configs := new(MockCertConfigStore)

	service := &CertificateService{
		configs: configs,
		metrics: metrics.NewMetrics(),
	}

	err := service.SetEventConfig(context.Background(), &models.CertificateConfig{
		EventID:     uuid.New(),
		Region:      "emea",
		IssuanceURL: "http://certs/issue",
		APIKey:      "k",
		TemplateID:  "t",
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	configs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestIssueRequiresSettledBatch(t *testing.T) {
	registrations := new(MockCertRegistrationStore)
	batches := new(MockBatchStore)

	score := 92.0
	registration := &models.Registration{
		ID:          uuid.New(),
		BatchID:     uuid.New(),
		ResultScore: &score,
	}
	batch := &models.Batch{
		ID:            registration.BatchID,
		Reference:     "BR-AB12CD34",
		PaymentStatus: models.BatchPaymentPending,
	}

	registrations.On("GetByID", mock.Anything, registration.ID).Return(registration, nil)
	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)

	service := &CertificateService{
		registrations: registrations,
		batches:       batches,
		metrics:       metrics.NewMetrics(),
	}

	_, err := service.Issue(context.Background(), registration.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
}
