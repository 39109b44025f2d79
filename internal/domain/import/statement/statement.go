// Package statement holds the value types shared by the import pipeline:
// raw uploads, format descriptors, candidate transactions and parse results.
package statement

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Format identifies a supported statement file format.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
	FormatOFX   Format = "ofx"
	FormatQIF   Format = "qif"
)

// Descriptor identifies a format a parser understands. Descriptors are
// declared once by each parser and never mutated afterwards.
type Descriptor struct {
	Format     Format
	Name       string
	Extensions []string // lowercase, with leading dot
	MIMETypes  []string
	Priority   int // higher wins when everything else ties
}

// MatchesExtension reports whether ext (with or without dot, any case) is one of
// the descriptor's extensions.
func (d Descriptor) MatchesExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// RawDocument is an uploaded statement file.
type RawDocument struct {
	Filename    string
	Data        []byte
	BankHint    string
	AccountHint string
	ReceivedAt  time.Time
}

// Size returns the buffer length in bytes.
func (d RawDocument) Size() int { return len(d.Data) }

// Extension returns the lowercase filename extension including the dot.
func (d RawDocument) Extension() string {
	return strings.ToLower(filepath.Ext(d.Filename))
}

// Sample returns at most n leading bytes of the document.
func (d RawDocument) Sample(n int) []byte {
	if n <= 0 || n >= len(d.Data) {
		return d.Data
	}
	return d.Data[:n]
}

// ForeignAmount carries the original-currency side of a card transaction
// settled in the account currency.
type ForeignAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	RateDate time.Time       `json:"rate_date,omitempty"`
}

// Candidate is a transaction extracted by a parser and not yet committed.
// Fields that could not be parsed are left empty and explained in FieldErrors.
type Candidate struct {
	Index       int                 `json:"index"`
	Date        time.Time           `json:"date"`
	Description string              `json:"description"`
	Amount      decimal.NullDecimal `json:"amount"`
	Currency    string              `json:"currency"`
	Merchant    string              `json:"merchant,omitempty"`
	Location    string              `json:"location,omitempty"`
	Reference   string              `json:"reference,omitempty"`
	AccountHint string              `json:"account_hint,omitempty"`
	Category    string              `json:"category,omitempty"`
	Foreign     *ForeignAmount      `json:"foreign,omitempty"`
	RawLines    []string            `json:"raw_lines,omitempty"`
	Block       int                 `json:"block"`
	Line        int                 `json:"line"`
	FieldErrors []FieldParseError   `json:"field_errors,omitempty"`
}

// HasDate reports whether the occurrence date was parsed.
func (c Candidate) HasDate() bool { return !c.Date.IsZero() }

// Complete reports whether date and amount are present and no sub-field failed.
func (c Candidate) Complete() bool {
	return c.HasDate() && c.Amount.Valid && len(c.FieldErrors) == 0
}

// AddFieldError attaches a field failure to the candidate.
func (c *Candidate) AddFieldError(field, raw string, err error) {
	c.FieldErrors = append(c.FieldErrors, FieldParseError{
		Block: c.Block,
		Line:  c.Line,
		Field: field,
		Raw:   raw,
		Err:   err,
	})
}

// Issue is an error or warning entry of a ParseResult. Block and Line are
// zero-based block index and one-based source line; -1 / 0 when unknown.
type Issue struct {
	Block   int    `json:"block"`
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

func (i Issue) String() string {
	switch {
	case i.Field != "":
		return fmt.Sprintf("block %d, line %d, field %s: %s", i.Block, i.Line, i.Field, i.Message)
	case i.Line > 0:
		return fmt.Sprintf("block %d, line %d: %s", i.Block, i.Line, i.Message)
	default:
		return i.Message
	}
}

// ParseResult is produced once per parse attempt.
type ParseResult struct {
	Success          bool              `json:"success"`
	Format           Format            `json:"format"`
	Candidates       []Candidate       `json:"candidates"`
	Errors           []Issue           `json:"errors"`
	Warnings         []Issue           `json:"warnings"`
	Metadata         map[string]string `json:"metadata"`
	TransactionCount int               `json:"transaction_count"`
}

// NewParseResult returns an empty result for format.
func NewParseResult(format Format) *ParseResult {
	return &ParseResult{
		Format:     format,
		Candidates: make([]Candidate, 0, 64),
		Errors:     make([]Issue, 0),
		Warnings:   make([]Issue, 0),
		Metadata:   make(map[string]string),
	}
}

// AddStructural records a block or record that could not be segmented. The
// failure is reported both as an error and, with the offending text, as a warning.
func (r *ParseResult) AddStructural(err StructuralParseError) {
	issue := Issue{Block: err.Block, Line: err.Line, Message: err.Reason, Raw: err.Raw}
	r.Errors = append(r.Errors, issue)
	r.Warnings = append(r.Warnings, Issue{
		Block:   err.Block,
		Line:    err.Line,
		Message: "skipped: " + err.Reason,
		Raw:     err.Raw,
	})
}

// AddWarning records a non-fatal observation.
func (r *ParseResult) AddWarning(block, line int, message, raw string) {
	r.Warnings = append(r.Warnings, Issue{Block: block, Line: line, Message: message, Raw: raw})
}

// Append adds a candidate and mirrors its field errors into the warnings.
func (r *ParseResult) Append(c Candidate) {
	for _, fe := range c.FieldErrors {
		r.Warnings = append(r.Warnings, Issue{
			Block:   fe.Block,
			Line:    fe.Line,
			Field:   fe.Field,
			Message: fe.Err.Error(),
			Raw:     fe.Raw,
		})
	}
	r.Candidates = append(r.Candidates, c)
}

// Finalize numbers the candidates in order and settles the derived fields.
func (r *ParseResult) Finalize() *ParseResult {
	complete := 0
	for i := range r.Candidates {
		r.Candidates[i].Index = i
		if r.Candidates[i].Complete() {
			complete++
		}
	}
	r.TransactionCount = len(r.Candidates)
	r.Success = complete > 0
	r.Metadata["complete_candidates"] = fmt.Sprint(complete)
	return r
}

// CompleteCount returns how many candidates parsed without field failures.
func (r *ParseResult) CompleteCount() int {
	n := 0
	for _, c := range r.Candidates {
		if c.Complete() {
			n++
		}
	}
	return n
}
