// Package bankconfig defines the declarative per-bank rule sets that drive the
// statement parsers: locale rules, line patterns, ignore patterns and column
// mappings. Configs are plain YAML values; Compile turns one into an immutable
// form with every pattern compiled once.
package bankconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sign conventions for delimited and spreadsheet amounts.
const (
	SignSigned        = "signed"         // amount column already carries the sign
	SignDebitNegative = "debit_negative" // every lone amount is a debit; debit/credit columns net as usual
	SignInverted      = "inverted"       // card statements that print spending as positive
)

// BankConfig is the declarative rule set for one bank or statement family.
type BankConfig struct {
	Name           string        `yaml:"name"`
	Bank           string        `yaml:"bank,omitempty"`
	Aliases        []string      `yaml:"aliases,omitempty"`
	Formats        []string      `yaml:"formats,omitempty"`
	Locale         Locale        `yaml:"locale"`
	Document       DocumentRules `yaml:"document,omitempty"`
	Merchant       MerchantRules `yaml:"merchant,omitempty"`
	Columns        Columns       `yaml:"columns,omitempty"`
	Delimiter      string        `yaml:"delimiter,omitempty"`
	SkipLines      int           `yaml:"skip_lines,omitempty"`
	Sheet          string        `yaml:"sheet,omitempty"`
	SignConvention string        `yaml:"sign_convention,omitempty"`
}

// Locale holds number and date conventions. An empty decimal separator means
// the delimited parsers probe the file's dialect instead.
type Locale struct {
	DecimalSeparator   string   `yaml:"decimal_separator,omitempty"`
	ThousandsSeparator string   `yaml:"thousands_separator,omitempty"`
	DateFormats        []string `yaml:"date_formats,omitempty"` // Go reference layouts
	DefaultYear        int      `yaml:"default_year,omitempty"`
	Currency           string   `yaml:"currency,omitempty"`
	Encoding           string   `yaml:"encoding,omitempty"`
}

// DocumentRules drive the page-document parser.
type DocumentRules struct {
	TransactionStart string      `yaml:"transaction_start,omitempty"`
	BlockStart       string      `yaml:"block_start,omitempty"` // looser opener; lines matching it but not TransactionStart are malformed blocks
	Fields           []FieldRule `yaml:"fields,omitempty"`
	Ignore           []string    `yaml:"ignore,omitempty"`
	YearPattern      string      `yaml:"year_pattern,omitempty"`
	StopPattern      string      `yaml:"stop_pattern,omitempty"`
}

// FieldRule is one continuation-line sub-pattern. Named groups in Pattern are
// assigned to candidate fields by name.
type FieldRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// MerchantRules describe how a combined merchant+location token is split.
type MerchantRules struct {
	Delimiter         string   `yaml:"delimiter,omitempty"`
	PlacePattern      string   `yaml:"place_pattern,omitempty"`
	KnownPlaces       []string `yaml:"known_places,omitempty"`
	CorporateSuffixes []string `yaml:"corporate_suffixes,omitempty"`
}

// Columns maps transaction fields to header names or zero-based indices.
type Columns struct {
	Date        ColumnRef `yaml:"date,omitempty"`
	Description ColumnRef `yaml:"description,omitempty"`
	Amount      ColumnRef `yaml:"amount,omitempty"`
	Debit       ColumnRef `yaml:"debit,omitempty"`
	Credit      ColumnRef `yaml:"credit,omitempty"`
	Currency    ColumnRef `yaml:"currency,omitempty"`
	Merchant    ColumnRef `yaml:"merchant,omitempty"`
	Reference   ColumnRef `yaml:"reference,omitempty"`
	Category    ColumnRef `yaml:"category,omitempty"`
}

// Explicit reports whether any column mapping is configured.
func (c Columns) Explicit() bool {
	return c.Date.IsSet() || c.Description.IsSet() || c.Amount.IsSet() ||
		c.Debit.IsSet() || c.Credit.IsSet()
}

// ColumnRef names a column either by header text or by index.
type ColumnRef struct {
	Name  string
	Index int
	set   bool
}

// ColumnName builds a reference by header text.
func ColumnName(name string) ColumnRef { return ColumnRef{Name: name, Index: -1, set: true} }

// ColumnIndex builds a reference by zero-based index.
func ColumnIndex(idx int) ColumnRef { return ColumnRef{Index: idx, set: true} }

// IsSet reports whether the reference was configured.
func (r ColumnRef) IsSet() bool { return r.set }

// IsZero lets yaml omitempty skip unset references.
func (r ColumnRef) IsZero() bool { return !r.set }

// UnmarshalYAML accepts either a scalar string (header name) or an integer.
func (r *ColumnRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: column must be a header name or index", node.Line)
	}
	if node.ShortTag() == "!!int" {
		var idx int
		if err := node.Decode(&idx); err != nil {
			return err
		}
		if idx < 0 {
			return fmt.Errorf("line %d: column index must not be negative", node.Line)
		}
		*r = ColumnIndex(idx)
		return nil
	}
	*r = ColumnName(node.Value)
	return nil
}

// MarshalYAML writes the reference back in the shape it was read.
func (r ColumnRef) MarshalYAML() (interface{}, error) {
	if r.Name != "" {
		return r.Name, nil
	}
	return r.Index, nil
}

// Resolve returns the column index for headers, or -1.
func (r ColumnRef) Resolve(headers []string) int {
	if !r.set {
		return -1
	}
	if r.Name == "" {
		return r.Index
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(r.Name)) {
			return i
		}
	}
	return -1
}

var (
	ErrMissingName       = errors.New("bank config: name is required")
	ErrMissingStartGroup = errors.New("bank config: transaction_start needs a date (or day and month) group and an amount group")
)

// Parse decodes one YAML document.
func Parse(data []byte) (*BankConfig, error) {
	var cfg BankConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing bank config: %w", err)
	}
	return &cfg, nil
}

// Load reads a bank config file from disk.
func Load(path string) (*BankConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bank config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads every *.yaml / *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]BankConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading bank config dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	configs := make([]BankConfig, 0, len(names))
	for _, name := range names {
		cfg, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// Marshal writes a config back to YAML.
func Marshal(cfg *BankConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling bank config: %w", err)
	}
	return data, nil
}
