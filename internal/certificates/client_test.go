package certificates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/models"
)

func TestIssueCertificate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"certificate_url": "http://certs/abc.pdf",
		})
	}))
	defer server.Close()

	client := NewClient(config.RegionCertificateConfig{
		IssuanceURL: server.URL,
		APIKey:      "key-123",
		TemplateID:  "tpl-default",
	}, 0)

	record := StudentRecord{
		RegistrationID: uuid.New().String(),
		StudentName:    "Asha Verma",
		EventName:      "Science Olympiad",
		SchoolName:     "Springdale High",
	}

	url, err := client.IssueCertificate(context.Background(), record, "")
	require.NoError(t, err)
	require.Equal(t, "http://certs/abc.pdf", url)
	require.Equal(t, "Bearer key-123", gotAuth)
	require.Equal(t, "Asha Verma", gotBody["student_name"])
	// The region default template applies when none is passed.
	require.Equal(t, "tpl-default", gotBody["template_id"])
}

func TestIssueCertificateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(config.RegionCertificateConfig{IssuanceURL: server.URL}, 0)

	_, err := client.IssueCertificate(context.Background(), StudentRecord{}, "tpl")
	require.Error(t, err)
}

func TestIssueCertificateEmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(config.RegionCertificateConfig{IssuanceURL: server.URL}, 0)

	_, err := client.IssueCertificate(context.Background(), StudentRecord{}, "tpl")
	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	client := NewClient(config.RegionCertificateConfig{HealthCheckURL: healthy.URL}, 0)
	require.NoError(t, client.HealthCheck(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	client = NewClient(config.RegionCertificateConfig{HealthCheckURL: unhealthy.URL}, 0)
	require.Error(t, client.HealthCheck(context.Background()))
}

func TestValidateKeyRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(config.RegionCertificateConfig{KeyValidationURL: server.URL, APIKey: "bad"}, 0)
	require.Error(t, client.ValidateKey(context.Background()))
}

func TestRecordFor(t *testing.T) {
	score := 92.0
	rank := 3
	award := "Gold"

	registration := &models.Registration{
		ID:          uuid.New(),
		StudentName: "Asha Verma",
		ResultScore: &score,
		ResultRank:  &rank,
		ResultAward: &award,
	}
	event := &models.Event{Name: "Science Olympiad"}
	school := &models.School{Name: "Springdale High"}

	record := RecordFor(registration, event, school)
	require.Equal(t, registration.ID.String(), record.RegistrationID)
	require.Equal(t, "Asha Verma", record.StudentName)
	require.Equal(t, "Science Olympiad", record.EventName)
	require.Equal(t, "Springdale High", record.SchoolName)
	require.Equal(t, &score, record.Score)
	require.Equal(t, &rank, record.Rank)
	require.Equal(t, &award, record.Award)
}
