package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is a fixed-point currency amount in minor units (2 decimal places).
// 10299 represents 102.99.
type Money int64

// Rate is a fixed-point exchange rate scaled by 1e4.
// 184500 represents 18.4500.
type Rate int64

const (
	moneyScale = 100
	rateScale  = 10000
)

// ParseMoney parses a decimal string like "102.99" into Money.
func ParseMoney(s string) (Money, error) {
	v, err := parseFixed(s, 2)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return Money(v), nil
}

// ParseRate parses a decimal string like "18.4500" into Rate.
func ParseRate(s string) (Rate, error) {
	v, err := parseFixed(s, 4)
	if err != nil {
		return 0, fmt.Errorf("parsing rate %q: %w", s, err)
	}
	return Rate(v), nil
}

func parseFixed(s string, places int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > places {
		return 0, fmt.Errorf("more than %d decimal places", places)
	}
	for len(frac) < places {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer part: %w", err)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	scale := int64(1)
	for i := 0; i < places; i++ {
		scale *= 10
	}
	v := w*scale + f
	if neg {
		v = -v
	}
	return v, nil
}

// String formats Money as a plain decimal, e.g. "102.99".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/moneyScale, v%moneyScale)
}

// String formats Rate as a plain decimal, e.g. "18.4500".
func (r Rate) String() string {
	sign := ""
	v := int64(r)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, v/rateScale, v%rateScale)
}

// ApplyRate converts a source amount into the destination currency,
// rounding half up on the last minor unit.
func (m Money) ApplyRate(r Rate) Money {
	return Money((int64(m)*int64(r) + rateScale/2) / rateScale)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return m + other
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m > 0
}

// Quote computes the destination amount and the total charged for a transfer.
func Quote(source Money, rate Rate, fee Money) (destination, total Money) {
	return source.ApplyRate(rate), source.Add(fee)
}
