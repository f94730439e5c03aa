package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

var errInvalidAmount = errors.New("amount must be a non-negative decimal")

// CurrencyScale returns the number of minor-unit digits of an ISO 4217 code.
func CurrencyScale(code string) (int, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// ParseMinorUnits converts a decimal string such as "5.00" into minor units of the
// currency. More fractional digits than the currency allows are rejected unless
// they are trailing zeros.
func ParseMinorUnits(amount, code string) (int64, error) {
	scale, err := CurrencyScale(code)
	if err != nil {
		return 0, err
	}

	value := strings.TrimSpace(amount)
	value = strings.TrimPrefix(value, "+")
	if value == "" || value == "." {
		return 0, errInvalidAmount
	}
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, errInvalidAmount
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > scale {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", amount, scale)
	}
	frac += strings.Repeat("0", scale-len(frac))

	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is out of range", amount)
	}
	return units, nil
}

// FormatMinorUnits renders minor units as a plain decimal string, e.g. 500 AUD as "5.00".
func FormatMinorUnits(units int64, code string) string {
	scale, err := CurrencyScale(code)
	if err != nil || scale == 0 {
		return strconv.FormatInt(units, 10)
	}
	sign := ""
	if units < 0 {
		sign = "-"
		if units == math.MinInt64 {
			return strconv.FormatInt(units, 10)
		}
		units = -units
	}
	digits := fmt.Sprintf("%0*d", scale+1, units)
	cut := len(digits) - scale
	return sign + digits[:cut] + "." + digits[cut:]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
