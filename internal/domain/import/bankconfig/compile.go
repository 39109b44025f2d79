package bankconfig

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/money"
)

// Group names understood by the page-document parser.
const (
	GroupDay              = "day"
	GroupMonth            = "month"
	GroupYear             = "year"
	GroupDate             = "date"
	GroupDescription      = "description"
	GroupAmount           = "amount"
	GroupCurrency         = "currency"
	GroupMerchantLocation = "merchant_location"
	GroupMerchant         = "merchant"
	GroupLocation         = "location"
	GroupReference        = "reference"
	GroupAccount          = "account"
	GroupOriginalAmount   = "original_amount"
	GroupOriginalCurrency = "original_currency"
	GroupRate             = "rate"
	GroupRateDate         = "rate_date"
)

var knownGroups = map[string]bool{
	GroupDay: true, GroupMonth: true, GroupYear: true, GroupDate: true,
	GroupDescription: true, GroupAmount: true, GroupCurrency: true,
	GroupMerchantLocation: true, GroupMerchant: true, GroupLocation: true,
	GroupReference: true, GroupAccount: true, GroupOriginalAmount: true,
	GroupOriginalCurrency: true, GroupRate: true, GroupRateDate: true,
}

// DefaultDateLayouts is used when a config lists no date formats.
var DefaultDateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.06",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// defaultBlockStart recognises lines that open a transaction by a leading
// date token even when the rest of the line does not parse.
var defaultBlockStart = regexp.MustCompile(`^\s*(?:\d{1,2}\.\s*\d{1,2}\.(?:\s*\d{2,4})?|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})(?:\s|$)`)

// CompiledField is a continuation-line rule with its pattern compiled.
type CompiledField struct {
	Name    string
	Pattern *regexp.Regexp
}

// Compiled is the immutable, ready-to-use form of a BankConfig. It is safe for
// concurrent use by any number of parsers.
type Compiled struct {
	Config            BankConfig
	Style             money.NumberStyle
	ProbeStyle        bool // no separators configured; delimited parsers sniff them
	DateLayouts       []string
	DefaultYear       int
	Currency          string
	Encoding          encoding.Encoding // nil means UTF-8
	Start             *regexp.Regexp
	BlockStart        *regexp.Regexp
	Fields            []CompiledField
	Ignore            []*regexp.Regexp
	Year              *regexp.Regexp
	Stop              *regexp.Regexp
	Place             *regexp.Regexp
	KnownPlaces       []string // upper-cased, longest first
	CorporateSuffixes []string
	MerchantDelimiter string
	Delimiter         rune // 0 means sniff
}

// Name returns the config name.
func (c *Compiled) Name() string { return c.Config.Name }

// HasDocumentRules reports whether the config can drive the page-document parser.
func (c *Compiled) HasDocumentRules() bool { return c.Start != nil }

// Ignored reports whether line matches one of the ignore patterns.
func (c *Compiled) Ignored(line string) bool {
	for _, re := range c.Ignore {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Validate performs shape checks only; it does not judge whether the patterns
// fit any particular statement.
func (cfg *BankConfig) Validate() error {
	if strings.TrimSpace(cfg.Name) == "" {
		return ErrMissingName
	}
	var errs []error

	if cfg.Document.TransactionStart != "" {
		re, err := regexp.Compile(cfg.Document.TransactionStart)
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction_start: %w", err))
		} else {
			if !hasStartGroups(re) {
				errs = append(errs, ErrMissingStartGroup)
			}
			if err := checkGroups("transaction_start", re); err != nil {
				errs = append(errs, err)
			}
		}
	} else if cfg.prefers(statement.FormatPDF) {
		errs = append(errs, fmt.Errorf("%w: formats list pdf but no transaction_start is set", ErrMissingStartGroup))
	}

	for i, f := range cfg.Document.Fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("fields[%d]: name is required", i))
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("fields[%d] %s: %w", i, f.Name, err))
			continue
		}
		if err := checkGroups(fmt.Sprintf("fields[%d] %s", i, f.Name), re); err != nil {
			errs = append(errs, err)
		}
	}
	for i, p := range cfg.Document.Ignore {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("ignore[%d]: %w", i, err))
		}
	}
	for name, p := range map[string]string{
		"block_start":   cfg.Document.BlockStart,
		"year_pattern":  cfg.Document.YearPattern,
		"stop_pattern":  cfg.Document.StopPattern,
		"place_pattern": cfg.Merchant.PlacePattern,
	} {
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	dec, decErr := singleRune("decimal_separator", cfg.Locale.DecimalSeparator)
	thou, thouErr := singleRune("thousands_separator", cfg.Locale.ThousandsSeparator)
	errs = append(errs, decErr, thouErr)
	if dec != 0 && dec == thou {
		errs = append(errs, fmt.Errorf("decimal and thousands separators must differ (both %q)", dec))
	}
	if _, err := delimiterRune(cfg.Delimiter); err != nil {
		errs = append(errs, err)
	}
	if _, err := LookupEncoding(cfg.Locale.Encoding); err != nil {
		errs = append(errs, err)
	}
	if cfg.Locale.Currency != "" && !money.IsCurrencyCode(cfg.Locale.Currency) {
		errs = append(errs, fmt.Errorf("locale currency %q is not an ISO-4217 code", cfg.Locale.Currency))
	}
	switch cfg.SignConvention {
	case "", SignSigned, SignDebitNegative, SignInverted:
	default:
		errs = append(errs, fmt.Errorf("unknown sign_convention %q", cfg.SignConvention))
	}
	for _, f := range cfg.Formats {
		if !knownFormat(f) {
			errs = append(errs, fmt.Errorf("unknown format %q", f))
		}
	}
	if cfg.SkipLines < 0 {
		errs = append(errs, errors.New("skip_lines must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bank config %q: %w", cfg.Name, err)
	}
	return nil
}

// Compile validates cfg and compiles every pattern once.
func (cfg *BankConfig) Compile() (*Compiled, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Compiled{
		Config:            *cfg,
		DateLayouts:       cfg.Locale.DateFormats,
		DefaultYear:       cfg.Locale.DefaultYear,
		Currency:          strings.ToUpper(cfg.Locale.Currency),
		CorporateSuffixes: cfg.Merchant.CorporateSuffixes,
		MerchantDelimiter: cfg.Merchant.Delimiter,
	}
	if len(c.DateLayouts) == 0 {
		c.DateLayouts = DefaultDateLayouts
	}

	dec, _ := singleRune("decimal_separator", cfg.Locale.DecimalSeparator)
	thou, _ := singleRune("thousands_separator", cfg.Locale.ThousandsSeparator)
	if dec == 0 {
		c.ProbeStyle = true
		c.Style = money.EuropeanStyle
	} else {
		c.Style = money.NumberStyle{Decimal: dec, Thousands: thou}
	}
	c.Delimiter, _ = delimiterRune(cfg.Delimiter)
	c.Encoding, _ = LookupEncoding(cfg.Locale.Encoding)

	if cfg.Document.TransactionStart != "" {
		c.Start = regexp.MustCompile(cfg.Document.TransactionStart)
		c.BlockStart = defaultBlockStart
		if p := cfg.Document.BlockStart; p != "" {
			c.BlockStart = regexp.MustCompile(p)
		}
	}
	for _, f := range cfg.Document.Fields {
		c.Fields = append(c.Fields, CompiledField{Name: f.Name, Pattern: regexp.MustCompile(f.Pattern)})
	}
	for _, p := range cfg.Document.Ignore {
		c.Ignore = append(c.Ignore, regexp.MustCompile(p))
	}
	if p := cfg.Document.YearPattern; p != "" {
		c.Year = regexp.MustCompile(p)
	}
	if p := cfg.Document.StopPattern; p != "" {
		c.Stop = regexp.MustCompile(p)
	}
	if p := cfg.Merchant.PlacePattern; p != "" {
		c.Place = regexp.MustCompile(p)
	}
	for _, place := range cfg.Merchant.KnownPlaces {
		if place = strings.ToUpper(strings.TrimSpace(place)); place != "" {
			c.KnownPlaces = append(c.KnownPlaces, place)
		}
	}
	sortLongestFirst(c.KnownPlaces)
	return c, nil
}

// LookupEncoding maps a config encoding name to a decoder. The empty name and
// UTF-8 return nil.
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

func hasStartGroups(re *regexp.Regexp) bool {
	groups := map[string]bool{}
	for _, n := range re.SubexpNames() {
		groups[n] = true
	}
	hasDate := groups[GroupDate] || (groups[GroupDay] && groups[GroupMonth])
	return hasDate && groups[GroupAmount]
}

func checkGroups(where string, re *regexp.Regexp) error {
	for _, n := range re.SubexpNames() {
		if n != "" && !knownGroups[n] {
			return fmt.Errorf("%s: unknown group name %q", where, n)
		}
	}
	return nil
}

func singleRune(field, s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "nbsp":
		return '\u00a0', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", field, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func delimiterRune(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, err := singleRune("delimiter", s)
	if err != nil {
		return 0, err
	}
	if r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("delimiter %q is not allowed", r)
	}
	return r, nil
}

func knownFormat(f string) bool {
	switch statement.Format(strings.ToLower(f)) {
	case statement.FormatPDF, statement.FormatCSV, statement.FormatExcel, statement.FormatOFX, statement.FormatQIF:
		return true
	}
	return false
}

func (cfg *BankConfig) prefers(f statement.Format) bool {
	for _, s := range cfg.Formats {
		if statement.Format(strings.ToLower(s)) == f {
			return true
		}
	}
	return false
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
}
