package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingYear     = errors.New("no year in date and no default year")
	ErrNoBankConfig    = errors.New("no bank config supplied")
	ErrNoDocumentRules = errors.New("bank config has no transaction_start pattern")
)

// extraDateLayouts are tried after the configured ones.
var extraDateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04",
	"02/01/2006 15:04",
	"20060102",
}

// ParseDate parses raw with the first layout that fits. Layouts are Go
// reference layouts; the extra ISO and timestamped forms are always accepted.
func ParseDate(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	// "1. 3. 2025" is common in Slovak and Czech statements.
	compact := strings.ReplaceAll(s, ". ", ".")
	for _, candidates := range [][]string{layouts, extraDateLayouts} {
		for _, layout := range candidates {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			if compact != s {
				if t, err := time.Parse(layout, compact); err == nil {
					return t, nil
				}
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// DayMonthDate builds a date from separately captured day and month, with
// year taking the place of a missing year group.
func DayMonthDate(day, month string, year int) (time.Time, error) {
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrInvalidDate, day)
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrInvalidDate, month)
	}
	if year <= 0 {
		return time.Time{}, ErrMissingYear
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: %d.%d.%d", ErrInvalidDate, d, m, year)
	}
	t := time.Date(year, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		// time.Date normalises 31.4. into 1.5.
		return time.Time{}, fmt.Errorf("%w: %d.%d.%d", ErrInvalidDate, d, m, year)
	}
	return t, nil
}

// parseYear accepts four-digit years and two-digit years in the 2000s.
func parseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: year %q", ErrInvalidDate, s)
	}
	switch len(s) {
	case 2:
		return 2000 + y, nil
	case 4:
		return y, nil
	}
	return 0, fmt.Errorf("%w: year %q", ErrInvalidDate, s)
}

// parseAmount parses raw under the config's number style. A currency found in
// the text is returned alongside.
func parseAmount(raw string, cfg *bankconfig.Compiled) (decimal.Decimal, string, error) {
	parsed, err := money.ParseAmount(raw, cfg.Style)
	if err != nil {
		return decimal.Zero, "", err
	}
	return parsed.Amount, parsed.Currency, nil
}

// parseRate parses an exchange rate. Rates use the locale decimal separator
// but never carry grouping, so a single separator is always decimal.
func parseRate(raw string, cfg *bankconfig.Compiled) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if strings.Count(s, ",")+strings.Count(s, ".") == 1 {
		s = strings.Replace(s, ",", ".", 1)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", money.ErrInvalidAmount, raw)
		}
		return d, nil
	}
	d, _, err := parseAmount(s, cfg)
	return d, err
}

// normalizeCurrency upper-cases code and checks it against ISO-4217.
func normalizeCurrency(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code, money.IsCurrencyCode(code)
}
