package money

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NumberStyle describes how a locale writes numbers.
type NumberStyle struct {
	Decimal   rune // '.' or ','
	Thousands rune // ',', '.', ' ', '\'' or 0 for none
}

var (
	EuropeanStyle = NumberStyle{Decimal: ',', Thousands: '.'}
	USStyle       = NumberStyle{Decimal: '.', Thousands: ','}
)

// ParsedAmount is the result of parsing a free-form amount string.
type ParsedAmount struct {
	Amount   decimal.Decimal
	Currency string // ISO code when one was present in the text
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"R$", "BRL"},
	{"Kč", CZK},
	{"zł", PLN},
	{"Ft", HUF},
	{"€", EUR},
	{"£", GBP},
	{"¥", JPY},
	{"$", USD},
}

// ParseAmount parses an amount written in the given style. It accepts a
// leading or trailing sign, parentheses for negatives, currency symbols and
// ISO codes, and grouping spaces. When only the "other" separator appears once
// and is not followed by exactly three digits it is read as the decimal
// separator, so "2.13" parses as 2.13 even in a comma-decimal locale.
func ParseAmount(raw string, style NumberStyle) (ParsedAmount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedAmount{}, ErrEmptyAmount
	}
	if style.Decimal == 0 {
		style = EuropeanStyle
	}

	var result ParsedAmount
	s, result.Currency = extractCurrency(s)

	negative := false
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		negative = true
		s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "−")
	case strings.HasSuffix(s, "-"):
		negative = true
		s = strings.TrimSuffix(s, "-")
	case strings.HasPrefix(s, "+"):
		s = strings.TrimPrefix(s, "+")
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return ParsedAmount{}, ErrEmptyAmount
	}

	normalized, err := normalizeNumber(s, style)
	if err != nil {
		return ParsedAmount{}, fmt.Errorf("%w: %q", err, raw)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return ParsedAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	result.Amount = d
	return result, nil
}

// normalizeNumber rewrites s into a plain "1234.56" form.
func normalizeNumber(s string, style NumberStyle) (string, error) {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return "", ErrInvalidAmount
		}
	}
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	var decimalSep rune
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			decimalSep = ','
		} else {
			decimalSep = '.'
		}
		if strings.Count(s, string(decimalSep)) > 1 {
			return "", ErrInvalidAmount
		}
	case dots == 0 && commas == 0:
		return s, nil
	default:
		sep := '.'
		count := dots
		if commas > 0 {
			sep, count = ',', commas
		}
		switch {
		case count > 1:
			if sep == style.Decimal {
				return "", ErrInvalidAmount
			}
			decimalSep = 0
		case sep == style.Decimal:
			decimalSep = sep
		case digitsAfter(s, sep) == 3:
			decimalSep = 0
		default:
			decimalSep = sep
		}
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == decimalSep:
			b.WriteRune('.')
		case r == '.' || r == ',':
			// grouping separator
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, ".") {
		out = "0" + out
	}
	if strings.HasSuffix(out, ".") {
		return "", ErrInvalidAmount
	}
	return out, nil
}

func digitsAfter(s string, sep rune) int {
	idx := strings.LastIndex(s, string(sep))
	if idx < 0 {
		return 0
	}
	return len(s) - idx - 1
}

// extractCurrency removes a currency symbol or ISO code from s.
func extractCurrency(s string) (string, string) {
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return strings.Replace(s, cs.symbol, "", 1), cs.code
		}
	}
	fields := strings.Fields(s)
	for _, f := range fields {
		if len(f) == 3 && IsCurrencyCode(f) && strings.ToUpper(f) == f {
			return strings.Replace(s, f, "", 1), f
		}
	}
	// Code glued to the number, e.g. "12,50EUR".
	if len(s) > 3 {
		tail := s[len(s)-3:]
		if strings.ToUpper(tail) == tail && IsCurrencyCode(tail) {
			return s[:len(s)-3], tail
		}
		head := s[:3]
		if strings.ToUpper(head) == head && IsCurrencyCode(head) {
			return s[3:], head
		}
	}
	return s, ""
}

// ExtractCurrencyCodes returns every known ISO code appearing as a token in s.
func ExtractCurrencyCodes(s string) []string {
	tokens := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var codes []string
	for _, t := range tokens {
		if IsCurrencyCode(t) {
			codes = append(codes, t)
		}
	}
	return codes
}

// CurrencyFromSymbol returns the ISO code for the first currency symbol in s.
func CurrencyFromSymbol(s string) (string, bool) {
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code, true
		}
	}
	return "", false
}
