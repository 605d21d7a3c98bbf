package ledger

import (
	"strconv"
	"strings"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/models"
)

// MaxAmount is the largest single entry accepted, in minor units.
const MaxAmount int64 = 1_000_000_000_000

// ParseAmount reads a whole positive amount. Thousands separators (',' '_')
// are accepted; fractions are not.
func ParseAmount(raw string) (int64, error) {
	s := strings.NewReplacer(",", "", "_", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, apperrors.Validation("amount is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, apperrors.Validation("amount %q must be a whole number", raw)
	}
	if err := validateAmount(n); err != nil {
		return 0, err
	}
	return n, nil
}

func validateAmount(n int64) error {
	if n <= 0 {
		return apperrors.Validation("amount must be greater than zero")
	}
	if n > MaxAmount {
		return apperrors.Validation("amount exceeds the maximum of %d", MaxAmount)
	}
	return nil
}

// ParseCurrency accepts IQD or USD in any case. An empty token yields the
// default currency.
func ParseCurrency(raw string) (models.Currency, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return models.DefaultCurrency, nil
	}
	c := models.Currency(s)
	if !c.Valid() {
		return "", apperrors.Validation("unsupported currency %q, use IQD or USD", raw)
	}
	return c, nil
}

// LooksLikeCurrency reports whether raw has the shape of an ISO 4217 code:
// three ASCII letters in any case.
func LooksLikeCurrency(raw string) bool {
	s := strings.TrimSpace(raw)
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
