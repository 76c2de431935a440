package pricing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/eventreg/internal/currency"
	"example.com/eventreg/internal/models"
)

var tierRules = []models.DiscountRule{
	{MinStudents: 50, DiscountPercentage: 10},
	{MinStudents: 100, DiscountPercentage: 15},
	{MinStudents: 200, DiscountPercentage: 20},
}

func TestComputeDiscountTiers(t *testing.T) {
	cases := []struct {
		students int
		want     float64
	}{
		{49, 0},
		{50, 10},
		{99, 10},
		{100, 15},
		{150, 15},
		{199, 15},
		{200, 20},
		{500, 20},
	}

	for _, tc := range cases {
		got := ComputeDiscount(tc.students, tierRules)
		require.Equal(t, tc.want, got, "students=%d", tc.students)
	}
}

func TestComputeDiscountNoRules(t *testing.T) {
	require.Equal(t, float64(0), ComputeDiscount(500, nil))
}

func TestComputeDiscountUnsortedRules(t *testing.T) {
	// Rule order in the event data must not matter.
	shuffled := []models.DiscountRule{
		{MinStudents: 200, DiscountPercentage: 20},
		{MinStudents: 50, DiscountPercentage: 10},
		{MinStudents: 100, DiscountPercentage: 15},
	}
	require.Equal(t, float64(15), ComputeDiscount(120, shuffled))
	require.Equal(t, float64(10), ComputeDiscount(50, shuffled))
}

func TestComputeNetAmount(t *testing.T) {
	// 120 students at 500 with 15% off: 60000 * 0.85 = 51000.
	got := ComputeNetAmount(500, 120, tierRules)
	require.Equal(t, float64(51000), got)
}

func TestComputeNetAmountRoundsOnce(t *testing.T) {
	rules := []models.DiscountRule{{MinStudents: 1, DiscountPercentage: 33.33}}
	// 3 * 0.10 * (1 - 0.3333) = 0.20001, rounded once to 0.20.
	got := ComputeNetAmount(0.10, 3, rules)
	require.Equal(t, 0.20, got)
}

type MockCountryStore struct {
	mock.Mock
}

func (m *MockCountryStore) GetByCountry(ctx context.Context, countryName string) (*models.CountryCurrency, error) {
	args := m.Called(ctx, countryName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CountryCurrency), args.Error(1)
}

func testEvent(t *testing.T) *models.Event {
	t.Helper()

	fees, err := json.Marshal(map[string]float64{"INR": 500, "USD": 25})
	require.NoError(t, err)
	rules, err := json.Marshal(tierRules)
	require.NoError(t, err)

	return &models.Event{
		ID:                uuid.New(),
		Name:              "National Science Olympiad",
		Status:            models.EventActive,
		BaseFees:          fees,
		BulkDiscountRules: rules,
	}
}

func TestCalculatorPrice(t *testing.T) {
	store := new(MockCountryStore)
	store.On("GetByCountry", mock.Anything, "india").Return(&models.CountryCurrency{
		CountryName: "india", CountryCode: "IN", Currency: "INR",
	}, nil)

	resolver := currency.NewResolver(store, nil, currency.USD, 0)
	calculator := NewCalculator(resolver)

	event := testEvent(t)
	school := &models.School{ID: uuid.New(), Name: "Springdale High", Country: "India"}

	priced, err := calculator.Price(context.Background(), event, school, 120)
	require.NoError(t, err)
	require.Equal(t, currency.INR, priced.Currency)
	require.Equal(t, float64(60000), priced.GrossAmount)
	require.Equal(t, float64(15), priced.DiscountPct)
	require.Equal(t, float64(51000), priced.NetAmount)

	store.AssertExpectations(t)
}

func TestCalculatorPriceCurrencyOverride(t *testing.T) {
	store := new(MockCountryStore)

	resolver := currency.NewResolver(store, nil, currency.USD, 0)
	calculator := NewCalculator(resolver)

	pref := currency.USD
	school := &models.School{ID: uuid.New(), Name: "Springdale High", Country: "India", CurrencyPref: &pref}

	priced, err := calculator.Price(context.Background(), testEvent(t), school, 10)
	require.NoError(t, err)
	require.Equal(t, currency.USD, priced.Currency)
	require.Equal(t, float64(250), priced.NetAmount)

	// The override means the country store is never consulted.
	store.AssertNotCalled(t, "GetByCountry", mock.Anything, mock.Anything)
}

func TestCalculatorPriceRejectsEmptyBatch(t *testing.T) {
	resolver := currency.NewResolver(new(MockCountryStore), nil, currency.USD, 0)
	calculator := NewCalculator(resolver)

	_, err := calculator.Price(context.Background(), testEvent(t), &models.School{Country: "India"}, 0)
	require.Error(t, err)
}
