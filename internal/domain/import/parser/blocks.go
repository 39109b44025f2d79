package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// LineOptions carry the per-document inputs of ParseLines.
type LineOptions struct {
	// FallbackYear is used when neither the statement header nor the config
	// supplies a year. Zero leaves year-less dates unparsed.
	FallbackYear int
	AccountHint  string
	Workers      int
}

type sourceLine struct {
	text string
	num  int // one-based across the whole document
	page int // one-based
}

type block struct {
	index     int
	start     sourceLine
	cont      []sourceLine
	malformed bool
}

type blockOutcome struct {
	candidate  *statement.Candidate
	structural *statement.StructuralParseError
	warnings   []statement.Issue
}

// foreignTolerance is the relative difference allowed between the settled
// amount and original amount converted at the printed rate.
var foreignTolerance = decimal.RequireFromString("0.01")

var dayMonthOnly = regexp.MustCompile(`^(\d{1,2})\.\s*(\d{1,2})\.?$`)

// ParseLines segments extracted statement text into transaction blocks and
// extracts one candidate per well-formed block. pages holds the lines of each
// page in reading order.
func ParseLines(ctx context.Context, pages [][]string, cfg *bankconfig.Compiled, opts LineOptions) (*statement.ParseResult, error) {
	if cfg == nil {
		return nil, ErrNoBankConfig
	}
	if !cfg.HasDocumentRules() {
		return nil, fmt.Errorf("bank config %q: %w", cfg.Name(), ErrNoDocumentRules)
	}

	result := statement.NewParseResult(statement.FormatPDF)
	year, yearSource := resolveYear(pages, cfg, opts.FallbackYear)

	blocks, stats := segment(pages, cfg)

	ex := &blockExtractor{
		cfg:         cfg,
		year:        year,
		accountHint: opts.AccountHint,
		splitter:    normalizer.NewSplitter(cfg.MerchantDelimiter, cfg.KnownPlaces, cfg.Place, cfg.CorporateSuffixes),
	}
	outcomes, err := mapOrdered(ctx, opts.Workers, blocks, ex.extract)
	if err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		if o.structural != nil {
			result.AddStructural(*o.structural)
		}
		result.Warnings = append(result.Warnings, o.warnings...)
		if o.candidate != nil {
			result.Append(*o.candidate)
		}
	}

	result.Metadata["pages"] = strconv.Itoa(len(pages))
	result.Metadata["lines"] = strconv.Itoa(stats.lines)
	result.Metadata["blocks"] = strconv.Itoa(len(blocks))
	result.Metadata["preamble_lines"] = strconv.Itoa(stats.preamble)
	result.Metadata["bank_config"] = cfg.Name()
	if year > 0 {
		result.Metadata["statement_year"] = strconv.Itoa(year)
		result.Metadata["statement_year_source"] = yearSource
	}
	return result.Finalize(), nil
}

type segmentStats struct {
	lines    int
	preamble int
}

// segment splits lines into blocks. A line matching the start pattern opens a
// block; a line that only looks like an opener (BlockStart) opens a malformed
// block so its continuation lines are not glued onto the previous
// transaction. The stop pattern ends the transaction list.
func segment(pages [][]string, cfg *bankconfig.Compiled) ([]block, segmentStats) {
	var (
		blocks  []block
		current *block
		stats   segmentStats
		stopped bool
	)
	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
	}

	num := 0
	for p, lines := range pages {
		for _, raw := range lines {
			num++
			text := collapseSpaces(raw)
			if text == "" || stopped || cfg.Ignored(text) {
				continue
			}
			stats.lines++
			if cfg.Stop != nil && cfg.Stop.MatchString(text) {
				stopped = true
				continue
			}
			line := sourceLine{text: text, num: num, page: p + 1}
			switch {
			case cfg.Start.MatchString(text):
				flush()
				current = &block{index: len(blocks), start: line}
			case cfg.BlockStart != nil && cfg.BlockStart.MatchString(text):
				flush()
				current = &block{index: len(blocks), start: line, malformed: true}
			case current != nil:
				current.cont = append(current.cont, line)
			default:
				stats.preamble++
			}
		}
	}
	flush()
	return blocks, stats
}

// resolveYear finds the statement year: a year_pattern hit in the text, then
// the configured default year, then the fallback.
func resolveYear(pages [][]string, cfg *bankconfig.Compiled, fallback int) (int, string) {
	if cfg.Year != nil {
		idx := cfg.Year.SubexpIndex(bankconfig.GroupYear)
		for _, lines := range pages {
			for _, l := range lines {
				m := cfg.Year.FindStringSubmatch(l)
				if m == nil || idx < 0 {
					continue
				}
				if y, err := parseYear(m[idx]); err == nil {
					return y, "document"
				}
			}
		}
	}
	if cfg.DefaultYear > 0 {
		return cfg.DefaultYear, "config"
	}
	if fallback > 0 {
		return fallback, "received"
	}
	return 0, ""
}

type blockExtractor struct {
	cfg         *bankconfig.Compiled
	year        int
	accountHint string
	splitter    *normalizer.Splitter
}

type foreignParts struct {
	amount, currency, rate, rateDate string
	line                             int
}

func (e *blockExtractor) extract(b block) blockOutcome {
	if b.malformed {
		return blockOutcome{structural: &statement.StructuralParseError{
			Block:  b.index,
			Line:   b.start.num,
			Raw:    b.start.text,
			Reason: "line opens a transaction but does not match the transaction start pattern",
		}}
	}

	start := e.cfg.Start
	m := start.FindStringSubmatch(b.start.text)
	group := func(name string) string {
		if i := start.SubexpIndex(name); i >= 0 && i < len(m) {
			return strings.TrimSpace(m[i])
		}
		return ""
	}

	rawDate := group(bankconfig.GroupDate)
	day, month := group(bankconfig.GroupDay), group(bankconfig.GroupMonth)
	rawAmount := group(bankconfig.GroupAmount)
	if (rawDate == "" && (day == "" || month == "")) || rawAmount == "" {
		return blockOutcome{structural: &statement.StructuralParseError{
			Block:  b.index,
			Line:   b.start.num,
			Raw:    b.start.text,
			Reason: "transaction start line is missing its date or amount",
		}}
	}

	c := statement.Candidate{
		Block:       b.index,
		Line:        b.start.num,
		Description: group(bankconfig.GroupDescription),
		AccountHint: e.accountHint,
		RawLines:    make([]string, 0, 1+len(b.cont)),
	}
	c.RawLines = append(c.RawLines, b.start.text)

	e.setDate(&c, rawDate, day, month, group(bankconfig.GroupYear))
	e.setAmount(&c, rawAmount, group(bankconfig.GroupCurrency))

	var fx foreignParts
	for _, name := range start.SubexpNames() {
		e.assign(&c, &fx, name, group(name), b.start.num)
	}

	for _, line := range b.cont {
		c.RawLines = append(c.RawLines, line.text)
		matched := false
		for _, f := range e.cfg.Fields {
			fm := f.Pattern.FindStringSubmatch(line.text)
			if fm == nil {
				continue
			}
			matched = true
			for i, name := range f.Pattern.SubexpNames() {
				if name != "" {
					e.assign(&c, &fx, name, strings.TrimSpace(fm[i]), line.num)
				}
			}
			break
		}
		if !matched {
			c.Description = strings.TrimSpace(c.Description + " " + line.text)
		}
	}

	var warnings []statement.Issue
	if fx.amount != "" {
		warnings = e.setForeign(&c, fx)
	}
	return blockOutcome{candidate: &c, warnings: warnings}
}

func (e *blockExtractor) setDate(c *statement.Candidate, rawDate, day, month, rawYear string) {
	if rawDate != "" {
		t, err := ParseDate(rawDate, e.cfg.DateLayouts)
		if err != nil {
			if dm := dayMonthOnly.FindStringSubmatch(rawDate); dm != nil {
				t, err = DayMonthDate(dm[1], dm[2], e.year)
			}
		}
		if err != nil {
			c.AddFieldError(bankconfig.GroupDate, rawDate, err)
			return
		}
		c.Date = t
		return
	}

	year := e.year
	if rawYear != "" {
		y, err := parseYear(rawYear)
		if err != nil {
			c.AddFieldError(bankconfig.GroupYear, rawYear, err)
			return
		}
		year = y
	}
	t, err := DayMonthDate(day, month, year)
	if err != nil {
		c.AddFieldError(bankconfig.GroupDate, day+"."+month+".", err)
		return
	}
	c.Date = t
}

func (e *blockExtractor) setAmount(c *statement.Candidate, raw, rawCurrency string) {
	amount, found, err := parseAmount(raw, e.cfg)
	if err != nil {
		c.AddFieldError(bankconfig.GroupAmount, raw, err)
	} else {
		c.Amount = decimal.NewNullDecimal(applySign(amount, e.cfg))
	}

	switch {
	case rawCurrency != "":
		code, ok := normalizeCurrency(rawCurrency)
		if !ok {
			c.AddFieldError(bankconfig.GroupCurrency, rawCurrency, fmt.Errorf("unknown currency code %q", rawCurrency))
			return
		}
		c.Currency = code
	case found != "":
		c.Currency = found
	default:
		c.Currency = e.cfg.Currency
	}
}

// assign stores one named group value. Date and amount groups are handled by
// the caller and ignored here.
func (e *blockExtractor) assign(c *statement.Candidate, fx *foreignParts, name, value string, line int) {
	if value == "" {
		return
	}
	switch name {
	case bankconfig.GroupMerchantLocation:
		ml := e.splitter.Split(value)
		c.Merchant, c.Location = ml.Merchant, ml.Location
	case bankconfig.GroupMerchant:
		c.Merchant = normalizer.StripCorporateSuffixes(value, e.cfg.CorporateSuffixes)
	case bankconfig.GroupLocation:
		c.Location = value
	case bankconfig.GroupReference:
		c.Reference = value
	case bankconfig.GroupAccount:
		c.AccountHint = strings.Join(strings.Fields(value), "")
	case bankconfig.GroupOriginalAmount:
		fx.amount, fx.line = value, line
	case bankconfig.GroupOriginalCurrency:
		fx.currency = value
	case bankconfig.GroupRate:
		fx.rate = value
	case bankconfig.GroupRateDate:
		fx.rateDate = value
	}
}

// setForeign parses the original-currency side. Failures become field errors;
// an inconsistent rate only warns, since banks round differently.
func (e *blockExtractor) setForeign(c *statement.Candidate, fx foreignParts) []statement.Issue {
	fa := statement.ForeignAmount{}
	ok := true

	amount, found, err := parseAmount(fx.amount, e.cfg)
	if err != nil {
		c.AddFieldError(bankconfig.GroupOriginalAmount, fx.amount, err)
		ok = false
	}
	fa.Amount = amount

	currency := fx.currency
	if currency == "" {
		currency = found
	}
	code, valid := normalizeCurrency(currency)
	if !valid {
		c.AddFieldError(bankconfig.GroupOriginalCurrency, currency, fmt.Errorf("unknown currency code %q", currency))
		ok = false
	}
	fa.Currency = code

	if fx.rate != "" {
		rate, err := parseRate(fx.rate, e.cfg)
		if err != nil || !rate.IsPositive() {
			if err == nil {
				err = fmt.Errorf("exchange rate must be positive")
			}
			c.AddFieldError(bankconfig.GroupRate, fx.rate, err)
			ok = false
		}
		fa.Rate = rate
	}
	if fx.rateDate != "" {
		t, err := ParseDate(fx.rateDate, e.cfg.DateLayouts)
		if err != nil {
			c.AddFieldError(bankconfig.GroupRateDate, fx.rateDate, err)
			ok = false
		}
		fa.RateDate = t
	}
	if !ok {
		return nil
	}
	c.Foreign = &fa

	if !c.Amount.Valid || !fa.Rate.IsPositive() {
		return nil
	}
	if consistentRate(c.Amount.Decimal.Abs(), fa.Amount.Abs(), fa.Rate) {
		return nil
	}
	return []statement.Issue{{
		Block: c.Block,
		Line:  fx.line,
		Field: "foreign",
		Message: fmt.Sprintf("original amount %s %s at rate %s does not match %s %s",
			fa.Amount, fa.Currency, fa.Rate, c.Amount.Decimal.Abs(), c.Currency),
	}}
}

// consistentRate accepts either rate direction (foreign per local or local per
// foreign), within foreignTolerance.
func consistentRate(settled, original, rate decimal.Decimal) bool {
	if settled.IsZero() {
		return original.IsZero()
	}
	for _, converted := range []decimal.Decimal{original.Div(rate), original.Mul(rate)} {
		diff := converted.Sub(settled).Abs().Div(settled)
		if diff.LessThanOrEqual(foreignTolerance) {
			return true
		}
	}
	return false
}

// applySign turns a printed amount into a signed one according to the config.
// Under debit_negative a lone amount is always a debit.
func applySign(d decimal.Decimal, cfg *bankconfig.Compiled) decimal.Decimal {
	switch cfg.Config.SignConvention {
	case bankconfig.SignInverted:
		return d.Neg()
	case bankconfig.SignDebitNegative:
		return d.Abs().Neg()
	}
	return d
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// yearOf returns t's year or 0 for the zero time.
func yearOf(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return t.Year()
}
