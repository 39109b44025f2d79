package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

// qifDateLayouts are tried after the apostrophe year separator is replaced
// with a slash.
var qifDateLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"2.1.2006",
	"2.1.06",
	"2006-01-02",
}

// qifCashTypes are the !Type: sections holding cash transactions.
var qifCashTypes = map[string]bool{
	"bank": true, "ccard": true, "cash": true, "oth a": true, "oth l": true,
}

// QIFParser reads Quicken Interchange Format exports.
type QIFParser struct{}

// NewQIFParser creates a QIF parser.
func NewQIFParser() *QIFParser { return &QIFParser{} }

func (p *QIFParser) Descriptor() statement.Descriptor { return QIFDescriptor }

type qifRecord struct {
	fields map[byte]string
	lines  []string
	line   int
}

// Parse reads every record of the cash sections. Records are terminated by
// "^"; a record lacking D or T is a structural error.
func (p *QIFParser) Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error) {
	if err := checkInput(ctx, doc, cfg); err != nil {
		return nil, err
	}
	text, encName, err := DecodeText(doc.Data, cfg.Encoding)
	if err != nil {
		return documentFailure(statement.FormatQIF, cfg, err), nil
	}

	style := cfg.Style
	if cfg.ProbeStyle {
		style = money.USStyle
	}
	layouts := append(append([]string{}, qifDateLayouts...), cfg.DateLayouts...)

	result := statement.NewParseResult(statement.FormatQIF)
	var (
		section = "bank"
		account = doc.AccountHint
		current *qifRecord
		block   int
		skipped int
	)
	for i, raw := range splitLines(text) {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line[0] == '!' {
			section = qifSection(line, section)
			continue
		}
		if line == "^" {
			if current == nil {
				continue
			}
			rec := current
			current = nil
			switch {
			case section == "account":
				if n := rec.fields['N']; n != "" {
					account = n
				}
			case !qifCashTypes[section]:
				skipped++
			default:
				p.emit(result, rec, block, account, style, layouts, cfg)
				block++
			}
			continue
		}
		if current == nil {
			current = &qifRecord{fields: make(map[byte]string), line: i + 1}
		}
		current.lines = append(current.lines, line)
		code, value := line[0], strings.TrimSpace(line[1:])
		if prev, ok := current.fields[code]; ok && code == 'A' {
			value = prev + ", " + value
		}
		if _, ok := current.fields[code]; !ok || code == 'A' {
			current.fields[code] = value
		}
	}
	if current != nil && qifCashTypes[section] {
		p.emit(result, current, block, account, style, layouts, cfg)
		result.AddWarning(block, current.line, "last record is not terminated by ^", "")
	}
	if skipped > 0 {
		result.AddWarning(-1, 0, fmt.Sprintf("skipped %d records of non-cash sections", skipped), "")
	}

	result.Metadata["encoding"] = encName
	result.Metadata["bank_config"] = cfg.Name()
	return result.Finalize(), nil
}

func (p *QIFParser) emit(result *statement.ParseResult, rec *qifRecord, block int, account string, style money.NumberStyle, layouts []string, cfg *bankconfig.Compiled) {
	rawDate := rec.fields['D']
	rawAmount := coalesce(rec.fields['T'], rec.fields['U'])
	if rawDate == "" || rawAmount == "" {
		result.AddStructural(statement.StructuralParseError{
			Block:  block,
			Line:   rec.line,
			Raw:    strings.Join(rec.lines, " | "),
			Reason: "record has no D (date) or T (amount) field",
		})
		return
	}

	c := statement.Candidate{
		Block:       block,
		Line:        rec.line,
		Merchant:    rec.fields['P'],
		Description: coalesce(rec.fields['P'], rec.fields['M']),
		Reference:   rec.fields['N'],
		Category:    rec.fields['L'],
		Location:    rec.fields['A'],
		AccountHint: account,
		Currency:    cfg.Currency,
		RawLines:    rec.lines,
	}
	if memo := rec.fields['M']; memo != "" && c.Description != memo {
		c.Description += " " + memo
	}

	if t, err := parseQIFDate(rawDate, layouts); err != nil {
		c.AddFieldError(bankconfig.GroupDate, rawDate, err)
	} else {
		c.Date = t
	}
	if parsed, err := money.ParseAmount(rawAmount, style); err != nil {
		c.AddFieldError(bankconfig.GroupAmount, rawAmount, err)
	} else {
		c.Amount = decimal.NewNullDecimal(parsed.Amount)
		if parsed.Currency != "" {
			c.Currency = parsed.Currency
		}
	}
	result.Append(c)
}

// qifSection returns the section a "!" directive switches to. Options such
// as !Option:AutoSwitch leave the section unchanged.
func qifSection(directive, current string) string {
	d := strings.ToLower(directive)
	switch {
	case strings.HasPrefix(d, "!type:"):
		return strings.TrimSpace(strings.TrimPrefix(d, "!type:"))
	case strings.HasPrefix(d, "!account"):
		return "account"
	}
	return current
}

// parseQIFDate accepts the apostrophe form (1/15'24), space-padded parts
// ( 1/ 5/24) and the configured layouts.
func parseQIFDate(raw string, layouts []string) (time.Time, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if i := strings.IndexByte(s, '\''); i >= 0 {
		year := s[i+1:]
		if len(year) <= 2 {
			n, err := strconv.Atoi(year)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
			}
			year = strconv.Itoa(2000 + n)
		}
		s = s[:i] + "/" + year
	}
	return ParseDate(s, layouts)
}
