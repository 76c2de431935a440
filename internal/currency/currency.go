package currency

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/eventreg/internal/cache"
	"example.com/eventreg/internal/models"
)

// Supported settlement currencies. Both use 100 subunits.
const (
	INR = "INR"
	USD = "USD"
)

var symbols = map[string]string{
	INR: "₹",
	USD: "$",
}

// IsSupported reports whether code is a known settlement currency.
func IsSupported(code string) bool {
	_, ok := symbols[code]
	return ok
}

// LookupStore is the reference-data source for country→currency rows.
type LookupStore interface {
	GetByCountry(ctx context.Context, countryName string) (*models.CountryCurrency, error)
}

// Resolver maps a school's country to its settlement currency.
type Resolver struct {
	store        LookupStore
	cache        *cache.RedisCache
	defaultCode  string
	cacheTTL     time.Duration
}

// NewResolver creates a resolver backed by the reference-data store.
// defaultCode is returned whenever a country is unknown or the lookup fails.
func NewResolver(store LookupStore, redisCache *cache.RedisCache, defaultCode string, cacheTTL time.Duration) *Resolver {
	if !IsSupported(defaultCode) {
		defaultCode = USD
	}
	return &Resolver{
		store:       store,
		cache:       redisCache,
		defaultCode: defaultCode,
		cacheTTL:    cacheTTL,
	}
}

// Resolve returns the settlement currency for a country. It is total: an
// unknown country or a failed lookup resolves to the default currency and
// never returns an error.
func (r *Resolver) Resolve(ctx context.Context, countryName string) string {
	normalized := strings.ToLower(strings.TrimSpace(countryName))
	if normalized == "" {
		return r.defaultCode
	}

	cacheKey := cache.CurrencyCacheKey(normalized)
	if r.cache != nil {
		var cached string
		if err := r.cache.Get(ctx, cacheKey, &cached); err == nil && IsSupported(cached) {
			return cached
		}
	}

	row, err := r.store.GetByCountry(ctx, normalized)
	if err != nil {
		// Lookup failures are treated as "unknown country", never propagated.
		log.Warn().Err(err).Str("country", countryName).Msg("Currency lookup failed, using default")
		return r.defaultCode
	}

	code := strings.ToUpper(row.Currency)
	if !IsSupported(code) {
		log.Warn().Str("country", countryName).Str("currency", code).Msg("Unsupported currency in reference data, using default")
		return r.defaultCode
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, code, r.cacheTTL); err != nil {
			log.Debug().Err(err).Str("country", countryName).Msg("Failed to cache currency lookup")
		}
	}

	return code
}

// Format renders an amount with its currency symbol, e.g. "₹51000.00".
func Format(amount float64, code string) string {
	symbol, ok := symbols[code]
	if !ok {
		symbol = code + " "
	}
	return fmt.Sprintf("%s%.2f", symbol, amount)
}

// ToSmallestUnit converts a major-unit amount to subunits (paise/cents).
func ToSmallestUnit(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromSmallestUnit converts subunits back to a major-unit amount.
func FromSmallestUnit(subunits int64) float64 {
	return float64(subunits) / 100
}

// ToMajorUnit converts an amount to whole major units, rounding to the
// nearest unit. Gateways that only accept integral major-unit amounts must
// use this instead of truncating subunits.
func ToMajorUnit(amount float64) int64 {
	return int64(math.Round(amount))
}

// RoundMinorUnit rounds an amount to the currency's minor-unit precision.
func RoundMinorUnit(amount float64) float64 {
	return math.Round(amount*100) / 100
}
