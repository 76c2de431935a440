package currency

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/internal/models"
)

type MockLookupStore struct {
	mock.Mock
}

func (m *MockLookupStore) GetByCountry(ctx context.Context, countryName string) (*models.CountryCurrency, error) {
	args := m.Called(ctx, countryName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CountryCurrency), args.Error(1)
}

func TestResolveKnownCountry(t *testing.T) {
	store := new(MockLookupStore)
	store.On("GetByCountry", mock.Anything, "india").Return(&models.CountryCurrency{
		CountryName: "india", CountryCode: "IN", Currency: "inr",
	}, nil)

	resolver := NewResolver(store, nil, USD, 0)

	require.Equal(t, INR, resolver.Resolve(context.Background(), "India"))
	store.AssertExpectations(t)
}

func TestResolveUnknownCountryFallsBack(t *testing.T) {
	store := new(MockLookupStore)
	store.On("GetByCountry", mock.Anything, "atlantis").Return(nil, errors.New("record not found"))

	resolver := NewResolver(store, nil, USD, 0)

	// Resolution is total: unknown countries get the default, never an error.
	require.Equal(t, USD, resolver.Resolve(context.Background(), "Atlantis"))
}

func TestResolveStoreFailureFallsBack(t *testing.T) {
	store := new(MockLookupStore)
	store.On("GetByCountry", mock.Anything, "india").Return(nil, errors.New("connection refused"))

	resolver := NewResolver(store, nil, USD, 0)

	require.Equal(t, USD, resolver.Resolve(context.Background(), "India"))
}

func TestResolveUnsupportedCurrencyFallsBack(t *testing.T) {
	store := new(MockLookupStore)
	store.On("GetByCountry", mock.Anything, "japan").Return(&models.CountryCurrency{
		CountryName: "japan", CountryCode: "JP", Currency: "JPY",
	}, nil)

	resolver := NewResolver(store, nil, USD, 0)

	require.Equal(t, USD, resolver.Resolve(context.Background(), "Japan"))
}

func TestResolveEmptyCountry(t *testing.T) {
	resolver := NewResolver(new(MockLookupStore), nil, INR, 0)
	require.Equal(t, INR, resolver.Resolve(context.Background(), "  "))
}

func TestNewResolverRejectsUnsupportedDefault(t *testing.T) {
	resolver := NewResolver(new(MockLookupStore), nil, "JPY", 0)
	require.Equal(t, USD, resolver.Resolve(context.Background(), ""))
}

func TestRoundMinorUnit(t *testing.T) {
	require.Equal(t, 51000.0, RoundMinorUnit(51000.004))
	require.Equal(t, 0.2, RoundMinorUnit(0.20001))
	require.Equal(t, 42.35, RoundMinorUnit(42.345001))
}

func TestSubunitConversion(t *testing.T) {
	require.Equal(t, int64(51000_00), ToSmallestUnit(51000))
	require.Equal(t, 510.5, FromSmallestUnit(51050))
}

func TestToMajorUnitRoundsInsteadOfTruncating(t *testing.T) {
	// Truncation would charge 67 for a 67.50 batch.
	require.Equal(t, int64(68), ToMajorUnit(67.50))
	require.Equal(t, int64(67), ToMajorUnit(67.49))
	require.Equal(t, int64(51000), ToMajorUnit(51000))
}

func TestFormat(t *testing.T) {
	require.Equal(t, "₹51000.00", Format(51000, INR))
	require.Equal(t, "$250.00", Format(250, USD))
}
