package parser

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// Parser turns one raw document into candidate transactions under a bank
// config. Malformed blocks and records are reported inside the result; an
// error is returned only when the whole document cannot be attempted (empty
// input, missing config, cancellation).
type Parser interface {
	Descriptor() statement.Descriptor
	Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error)
}

// Registry binds formats to parsers. It is written at startup (and by tests)
// and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	parsers map[statement.Format]Parser
}

// NewRegistry returns a registry holding parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[statement.Format]Parser, len(parsers))}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in format.
func DefaultRegistry(logger *slog.Logger) *Registry {
	return NewRegistry(
		NewPDFParser(logger),
		NewDelimitedParser(logger),
		NewExcelParser(logger),
		NewOFXParser(),
		NewQIFParser(),
	)
}

// Register binds p to its descriptor's format, replacing any earlier binding.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Descriptor().Format] = p
}

// Resolve returns the parser for desc.
func (r *Registry) Resolve(desc statement.Descriptor) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[desc.Format]
	if !ok {
		return nil, &statement.NotSupportedError{Reason: "no parser registered for format " + string(desc.Format)}
	}
	return p, nil
}

// Descriptors lists the registered descriptors, highest priority first.
func (r *Registry) Descriptors() []statement.Descriptor {
	r.mu.RLock()
	out := make([]statement.Descriptor, 0, len(r.parsers))
	for _, p := range r.parsers {
		out = append(out, p.Descriptor())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Format < out[j].Format
	})
	return out
}

// Descriptors declared by the built-in parsers.
var (
	PDFDescriptor = statement.Descriptor{
		Format:     statement.FormatPDF,
		Name:       "PDF statement",
		Extensions: []string{".pdf"},
		MIMETypes:  []string{"application/pdf"},
		Priority:   50,
	}
	DelimitedDescriptor = statement.Descriptor{
		Format:     statement.FormatCSV,
		Name:       "Delimited text",
		Extensions: []string{".csv", ".tsv", ".txt"},
		MIMETypes:  []string{"text/csv", "text/tab-separated-values", "text/plain"},
		Priority:   40,
	}
	ExcelDescriptor = statement.Descriptor{
		Format:     statement.FormatExcel,
		Name:       "Spreadsheet",
		Extensions: []string{".xlsx", ".xlsm", ".xls"},
		MIMETypes: []string{
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-excel",
		},
		Priority: 40,
	}
	OFXDescriptor = statement.Descriptor{
		Format:     statement.FormatOFX,
		Name:       "OFX / QFX",
		Extensions: []string{".ofx", ".qfx"},
		MIMETypes:  []string{"application/x-ofx"},
		Priority:   30,
	}
	QIFDescriptor = statement.Descriptor{
		Format:     statement.FormatQIF,
		Name:       "Quicken Interchange",
		Extensions: []string{".qif"},
		MIMETypes:  []string{"application/qif"},
		Priority:   30,
	}
)

// checkInput applies the common preconditions of every parser.
func checkInput(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Size() == 0 {
		return statement.ErrEmptyDocument
	}
	if cfg == nil {
		return ErrNoBankConfig
	}
	return nil
}
