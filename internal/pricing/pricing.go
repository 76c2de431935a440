package pricing

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"example.com/eventreg/internal/currency"
	"example.com/eventreg/internal/models"
)

// ComputeDiscount returns the discount percentage for a student count.
// Rules are evaluated by descending min_students; the first rule whose
// threshold is met wins. No matching rule means no discount.
//
// Duplicate thresholds are a data-integrity precondition; when present the
// first rule in sorted order is authoritative.
func ComputeDiscount(studentCount int, rules []models.DiscountRule) float64 {
	if len(rules) == 0 {
		return 0
	}

	sorted := make([]models.DiscountRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinStudents > sorted[j].MinStudents
	})

	for _, rule := range sorted {
		if rule.MinStudents <= studentCount {
			return rule.DiscountPercentage
		}
	}
	return 0
}

// ComputeNetAmount applies the bulk discount to the gross batch fee.
// Rounding to minor-unit precision happens once on the final amount,
// not per student.
func ComputeNetAmount(baseFee float64, studentCount int, rules []models.DiscountRule) float64 {
	discount := ComputeDiscount(studentCount, rules)
	net := baseFee * float64(studentCount) * (1 - discount/100)
	return currency.RoundMinorUnit(net)
}

// PricedBatch is the result of pricing a submission, frozen at submit time.
type PricedBatch struct {
	Currency    string
	GrossAmount float64
	DiscountPct float64
	NetAmount   float64
}

// Calculator composes currency resolution and the discount engine to price
// a batch submission.
type Calculator struct {
	resolver *currency.Resolver
}

// NewCalculator creates a pricing calculator.
func NewCalculator(resolver *currency.Resolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Price computes the settlement currency and discounted amount for a batch.
// The result is computed once at submission and never silently recomputed.
func (c *Calculator) Price(ctx context.Context, event *models.Event, school *models.School, studentCount int) (*PricedBatch, error) {
	if studentCount <= 0 {
		return nil, errors.New("student count must be positive")
	}

	code := c.resolveCurrency(ctx, school)

	baseFee, err := event.BaseFeeFor(code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve event base fee")
	}

	rules, err := event.DiscountRules()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load discount rules")
	}

	gross := currency.RoundMinorUnit(baseFee * float64(studentCount))
	discount := ComputeDiscount(studentCount, rules)
	net := ComputeNetAmount(baseFee, studentCount, rules)

	return &PricedBatch{
		Currency:    code,
		GrossAmount: gross,
		DiscountPct: discount,
		NetAmount:   net,
	}, nil
}

// resolveCurrency honors an explicit school override, otherwise resolves
// from the school's country.
func (c *Calculator) resolveCurrency(ctx context.Context, school *models.School) string {
	if school.CurrencyPref != nil && currency.IsSupported(*school.CurrencyPref) {
		return *school.CurrencyPref
	}
	return c.resolver.Resolve(ctx, school.Country)
}
