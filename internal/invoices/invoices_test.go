package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/internal/models"
)

type MockBatchStore struct {
	mock.Mock
}

func (m *MockBatchStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Batch), args.Error(1)
}

func (m *MockBatchStore) GetByReference(ctx context.Context, reference string) (*models.Batch, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Batch), args.Error(1)
}

func (m *MockBatchStore) SetInvoice(ctx context.Context, id uuid.UUID, invoiceNumber, url string) (bool, error) {
	args := m.Called(ctx, id, invoiceNumber, url)
	return args.Bool(0), args.Error(1)
}

func (m *MockBatchStore) OverwriteInvoiceURL(ctx context.Context, id uuid.UUID, url string) error {
	args := m.Called(ctx, id, url)
	return args.Error(0)
}

func (m *MockBatchStore) ListSettledWithoutInvoice(ctx context.Context, limit int) ([]models.Batch, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Batch), args.Error(1)
}

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) GetCompletedForBatch(ctx context.Context, batchID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

type MockSchoolStore struct {
	mock.Mock
}

func (m *MockSchoolStore) GetByID(ctx context.Context, id uuid.UUID) (*models.School, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.School), args.Error(1)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Event), args.Error(1)
}

type MockRegistrationStore struct {
	mock.Mock
}

func (m *MockRegistrationStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]models.Registration), args.Error(1)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, data RenderData) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

func settledBatch() *models.Batch {
	return &models.Batch{
		ID:            uuid.New(),
		CreatedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SchoolID:      uuid.New(),
		EventID:       uuid.New(),
		Reference:     "BR-AB12CD34",
		Status:        models.BatchConfirmed,
		TotalStudents: 120,
		Currency:      "INR",
		GrossAmount:   60000,
		DiscountPct:   15,
		TotalAmount:   51000,
		PaymentMode:   models.PaymentModeOnline,
		PaymentStatus: models.BatchPaymentCompleted,
	}
}

func newTestGenerator(batches *MockBatchStore, payments *MockPaymentStore, schools *MockSchoolStore, events *MockEventStore, registrations *MockRegistrationStore, renderer *MockRenderer) *Generator {
	return NewGenerator(batches, payments, schools, events, registrations, renderer, 50)
}

func stubRenderData(batch *models.Batch, payments *MockPaymentStore, schools *MockSchoolStore, events *MockEventStore, registrations *MockRegistrationStore) {
	schools.On("GetByID", mock.Anything, batch.SchoolID).Return(&models.School{ID: batch.SchoolID, Name: "Springdale High"}, nil)
	events.On("GetByID", mock.Anything, batch.EventID).Return(&models.Event{ID: batch.EventID, Name: "Science Olympiad"}, nil)
	registrations.On("ListByBatch", mock.Anything, batch.ID).Return([]models.Registration{}, nil)
	payments.On("GetCompletedForBatch", mock.Anything, batch.ID).Return(&models.Payment{
		ID: uuid.New(), BatchID: batch.ID, Status: models.PaymentCompleted,
	}, nil)
}

func TestGenerateFirstTime(t *testing.T) {
	batches := new(MockBatchStore)
	payments := new(MockPaymentStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	registrations := new(MockRegistrationStore)
	renderer := new(MockRenderer)

	batch := settledBatch()
	number := InvoiceNumberFor(batch)

	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)
	stubRenderData(batch, payments, schools, events, registrations)
	renderer.On("Render", mock.Anything, mock.AnythingOfType("RenderData")).Return("http://files/"+number+".pdf", nil)
	batches.On("SetInvoice", mock.Anything, batch.ID, number, "http://files/"+number+".pdf").Return(true, nil)

	generator := newTestGenerator(batches, payments, schools, events, registrations, renderer)

	artifact, err := generator.Generate(context.Background(), batch.ID)
	require.NoError(t, err)
	require.False(t, artifact.Existing)
	require.Equal(t, number, artifact.InvoiceNumber)
	require.Equal(t, "http://files/"+number+".pdf", artifact.URL)

	batches.AssertExpectations(t)
	renderer.AssertExpectations(t)
}

func TestGenerateReturnsExistingWithoutRendering(t *testing.T) {
	batches := new(MockBatchStore)
	renderer := new(MockRenderer)

	batch := settledBatch()
	number := "INV-2026-DEADBEEF"
	url := "http://files/INV-2026-DEADBEEF.pdf"
	batch.InvoiceNumber = &number
	batch.InvoicePDFURL = &url

	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)

	generator := newTestGenerator(batches, new(MockPaymentStore), new(MockSchoolStore), new(MockEventStore), new(MockRegistrationStore), renderer)

	artifact, err := generator.Generate(context.Background(), batch.ID)
	require.NoError(t, err)
	require.True(t, artifact.Existing)
	require.Equal(t, number, artifact.InvoiceNumber)
	require.Equal(t, url, artifact.URL)

	renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestGenerateRequiresSettledPayment(t *testing.T) {
	batches := new(MockBatchStore)

	batch := settledBatch()
	batch.PaymentStatus = models.BatchPaymentPending

	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)

	generator := newTestGenerator(batches, new(MockPaymentStore), new(MockSchoolStore), new(MockEventStore), new(MockRegistrationStore), new(MockRenderer))

	_, err := generator.Generate(context.Background(), batch.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotSettled))
}

func TestGenerateAcceptsVerifiedBatch(t *testing.T) {
	batches := new(MockBatchStore)
	payments := new(MockPaymentStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	registrations := new(MockRegistrationStore)
	renderer := new(MockRenderer)

	batch := settledBatch()
	batch.PaymentMode = models.PaymentModeOffline
	batch.PaymentStatus = models.BatchPaymentVerified
	number := InvoiceNumberFor(batch)

	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil)
	stubRenderData(batch, payments, schools, events, registrations)
	renderer.On("Render", mock.Anything, mock.AnythingOfType("RenderData")).Return("http://files/x.pdf", nil)
	batches.On("SetInvoice", mock.Anything, batch.ID, number, "http://files/x.pdf").Return(true, nil)

	generator := newTestGenerator(batches, payments, schools, events, registrations, renderer)

	artifact, err := generator.Generate(context.Background(), batch.ID)
	require.NoError(t, err)
	require.False(t, artifact.Existing)
}

func TestGenerateConcurrentLoserReturnsWinner(t *testing.T) {
	batches := new(MockBatchStore)
	payments := new(MockPaymentStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	registrations := new(MockRegistrationStore)
	renderer := new(MockRenderer)

	batch := settledBatch()
	number := InvoiceNumberFor(batch)

	winnerURL := "http://files/winner.pdf"
	settled := *batch
	settled.InvoiceNumber = &number
	settled.InvoicePDFURL = &winnerURL

	batches.On("GetByID", mock.Anything, batch.ID).Return(batch, nil).Once()
	stubRenderData(batch, payments, schools, events, registrations)
	renderer.On("Render", mock.Anything, mock.AnythingOfType("RenderData")).Return("http://files/loser.pdf", nil)
	// The guarded write loses; a re-read shows the winner's artifact.
	batches.On("SetInvoice", mock.Anything, batch.ID, number, "http://files/loser.pdf").Return(false, nil)
	batches.On("GetByID", mock.Anything, batch.ID).Return(&settled, nil).Once()

	generator := newTestGenerator(batches, payments, schools, events, registrations, renderer)

	artifact, err := generator.Generate(context.Background(), batch.ID)
	require.NoError(t, err)
	require.True(t, artifact.Existing)
	require.Equal(t, winnerURL, artifact.URL)
}

func TestRegenerateKeepsInvoiceNumber(t *testing.T) {
	batches := new(MockBatchStore)
	payments := new(MockPaymentStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	registrations := new(MockRegistrationStore)
	renderer := new(MockRenderer)

	batch := settledBatch()
	number := "INV-2026-AAAA1111"
	oldURL := "http://files/old.pdf"
	batch.InvoiceNumber = &number
	batch.InvoicePDFURL = &oldURL

	batches.On("GetByReference", mock.Anything, batch.Reference).Return(batch, nil)
	stubRenderData(batch, payments, schools, events, registrations)
	renderer.On("Render", mock.Anything, mock.AnythingOfType("RenderData")).Return("http://files/new.pdf", nil)
	batches.On("OverwriteInvoiceURL", mock.Anything, batch.ID, "http://files/new.pdf").Return(nil)

	generator := newTestGenerator(batches, payments, schools, events, registrations, renderer)

	artifact, err := generator.Regenerate(context.Background(), batch.Reference)
	require.NoError(t, err)
	require.Equal(t, number, artifact.InvoiceNumber)
	require.Equal(t, "http://files/new.pdf", artifact.URL)
}

func TestRegenerateRequiresExistingInvoice(t *testing.T) {
	batches := new(MockBatchStore)

	batch := settledBatch()
	batches.On("GetByReference", mock.Anything, batch.Reference).Return(batch, nil)

	generator := newTestGenerator(batches, new(MockPaymentStore), new(MockSchoolStore), new(MockEventStore), new(MockRegistrationStore), new(MockRenderer))

	_, err := generator.Regenerate(context.Background(), batch.Reference)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoInvoice))
}

func TestBulkGeneratePartitionsFailures(t *testing.T) {
	batches := new(MockBatchStore)
	payments := new(MockPaymentStore)
	schools := new(MockSchoolStore)
	events := new(MockEventStore)
	registrations := new(MockRegistrationStore)
	renderer := new(MockRenderer)

	good := settledBatch()
	bad := settledBatch()
	bad.Reference = "BR-FF00FF00"
	goodNumber := InvoiceNumberFor(good)

	batches.On("ListSettledWithoutInvoice", mock.Anything, 50).Return([]models.Batch{*good, *bad}, nil)

	batches.On("GetByID", mock.Anything, good.ID).Return(good, nil)
	stubRenderData(good, payments, schools, events, registrations)
	renderer.On("Render", mock.Anything, mock.MatchedBy(func(d RenderData) bool {
		return d.Batch.ID == good.ID
	})).Return("http://files/good.pdf", nil)
	batches.On("SetInvoice", mock.Anything, good.ID, goodNumber, "http://files/good.pdf").Return(true, nil)

	// The second batch fails to load; the sweep carries on.
	batches.On("GetByID", mock.Anything, bad.ID).Return(nil, errors.New("connection reset"))

	generator := newTestGenerator(batches, payments, schools, events, registrations, renderer)

	result, err := generator.BulkGenerate(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Generated, 1)
	require.Len(t, result.Failed, 1)
	require.Equal(t, bad.Reference, result.Failed[0].BatchReference)
}

func TestInvoiceNumberIsStable(t *testing.T) {
	batch := settledBatch()
	first := InvoiceNumberFor(batch)
	second := InvoiceNumberFor(batch)
	require.Equal(t, first, second)
	require.Contains(t, first, "INV-2026-")
}
