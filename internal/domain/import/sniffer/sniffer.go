// Package sniffer recognises statement formats. Detect picks a format from a
// file's name and leading bytes; DetectConfig inspects delimited text to find
// its delimiter, header row and regional dialect.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/FACorreiaa/statement-import/pkg/money"
)

// Common bank statement header keywords (multi-language)
var headerKeywords = []string{
	// Slovak / Czech
	"dátum", "datum", "popis", "suma", "čiastka", "částka", "mena", "měna", "zostatok", "zůstatek",
	"protistrana", "obchodník", "miesto", "kategória", "kategorie", "poznámka",
	// German
	"buchungstag", "valuta", "betrag", "verwendungszweck", "umsatz", "soll", "haben", "währung",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant", "payee", "currency",
	// Portuguese / Spanish
	"data mov", "descrição", "descricao", "débito", "crédito", "saldo", "fecha", "importe",
}

// FileConfig holds the detected configuration for a CSV/TSV file
type FileConfig struct {
	Delimiter   rune       // The field delimiter (';', ',', '\t')
	SkipLines   int        // Number of metadata lines before headers
	Headers     []string   // Detected header names
	Fingerprint string     // SHA256 hash of normalized headers
	SampleRows  [][]string // First few data rows for preview
}

// DetectOptions allows callers to override header row or delimiter detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based index for the header row. Set to -1 to auto-detect.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// ColumnSuggestions provides auto-detected column indices
type ColumnSuggestions struct {
	DateCol       int // -1 if not found
	DescCol       int
	AmountCol     int // -1 if separate debit/credit
	DebitCol      int
	CreditCol     int
	CurrencyCol   int
	MerchantCol   int
	ReferenceCol  int
	CategoryCol   int
	IsDoubleEntry bool // separate debit/credit columns detected
}

// Found reports whether the suggestions are enough to read transactions.
func (s *ColumnSuggestions) Found() bool {
	return s.DateCol >= 0 && (s.AmountCol >= 0 || s.IsDoubleEntry)
}

// RegionalDialect represents inferred regional formatting for amounts and dates
type RegionalDialect struct {
	DecimalSeparator   rune
	ThousandsSeparator rune
	DayFirst           bool   // DD/MM rather than MM/DD
	CurrencyHint       string // ISO code when a symbol or code was seen
	Confidence         float64
}

// Style converts the dialect into the amount parser's number style.
func (d *RegionalDialect) Style() money.NumberStyle {
	return money.NumberStyle{Decimal: d.DecimalSeparator, Thousands: d.ThousandsSeparator}
}

// ProbeDialect analyzes sample rows to infer the regional "dialect" of the file.
// It examines amount columns for decimal separators and date columns for
// day/month order. Central-European statements are the default.
func ProbeDialect(sampleRows [][]string, amountIdx, dateIdx int) *RegionalDialect {
	dialect := &RegionalDialect{
		DecimalSeparator:   ',',
		ThousandsSeparator: ' ',
		DayFirst:           true,
		Confidence:         0.5,
	}

	europeanHints, usHints := 0, 0
	monthFirst := false

	for _, row := range sampleRows {
		if amountIdx >= 0 && amountIdx < len(row) && row[amountIdx] != "" {
			switch hint := analyzeAmountFormat(row[amountIdx]); {
			case hint > 0:
				europeanHints++
			case hint < 0:
				usHints++
			}
		}

		if dateIdx >= 0 && dateIdx < len(row) && row[dateIdx] != "" {
			if analyzeDateFormat(row[dateIdx]) < 0 {
				monthFirst = true
			}
		}

		for _, cell := range row {
			if dialect.CurrencyHint != "" {
				break
			}
			if code, ok := money.CurrencyFromSymbol(cell); ok {
				dialect.CurrencyHint = code
			} else if codes := money.ExtractCurrencyCodes(cell); len(codes) == 1 && len(strings.TrimSpace(cell)) <= 16 {
				dialect.CurrencyHint = codes[0]
			}
		}
	}

	if usHints > europeanHints {
		dialect.DecimalSeparator = '.'
		dialect.ThousandsSeparator = ','
	}

	if total := europeanHints + usHints; total > 0 {
		winning := europeanHints
		if usHints > europeanHints {
			winning = usHints
		}
		dialect.Confidence = float64(winning) / float64(total)
	}

	// A month-first date can only be proven by a second component above 12.
	dialect.DayFirst = !monthFirst

	return dialect
}

// analyzeAmountFormat returns: >0 for European, <0 for US, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)
	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return 1 // 1.234,56
		}
		return -1 // 1,234.56
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
		return 0 // could be US thousands
	case lastDot >= 0:
		if len(cleaned)-lastDot-1 <= 2 {
			return -1
		}
		return 0 // could be European thousands
	}
	return 0
}

// analyzeDateFormat returns 1 when the date is provably day-first, -1 when it
// is provably month-first and 0 when it is ambiguous or year-first.
func analyzeDateFormat(dateVal string) int {
	parts := strings.FieldsFunc(dateVal, func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == ' '
	})
	if len(parts) < 2 || len(parts[0]) == 4 {
		return 0
	}
	first, second := leadingInt(parts[0]), leadingInt(parts[1])
	switch {
	case first > 12 && first <= 31:
		return 1
	case second > 12 && second <= 31 && first <= 12:
		return -1
	}
	return 0
}

func leadingInt(s string) int {
	n := 0
	for _, c := range strings.TrimSpace(s) {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// DetectConfig analyzes a CSV/TSV file and returns its configuration
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a CSV/TSV file with optional overrides.
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	switch {
	case opts != nil && opts.HeaderRowIndex >= 0:
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		delimiter = opts.Delimiter
		if delimiter == 0 {
			delimiter, _ = detectDelimiter(cleanLine(lines[skipLines], skipLines == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	default:
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		}
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines], skipLines == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
		SampleRows:  getSampleRows(lines, delimiter, skipLines+1, 5),
	}, nil
}

// SuggestColumns attempts to auto-match columns based on header names
func SuggestColumns(headers []string) *ColumnSuggestions {
	s := &ColumnSuggestions{
		DateCol:      -1,
		DescCol:      -1,
		AmountCol:    -1,
		DebitCol:     -1,
		CreditCol:    -1,
		CurrencyCol:  -1,
		MerchantCol:  -1,
		ReferenceCol: -1,
		CategoryCol:  -1,
	}

	pick := func(col *int, i int, h string, contains []string, exact []string) {
		if *col != -1 {
			return
		}
		for _, e := range exact {
			if h == e {
				*col = i
				return
			}
		}
		for _, c := range contains {
			if strings.Contains(h, c) {
				*col = i
				return
			}
		}
	}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))

		pick(&s.DateCol, i, h,
			[]string{"dátum", "datum", "date", "buchungstag", "data mov", "fecha"},
			[]string{"data", "valuta"})
		pick(&s.DebitCol, i, h,
			[]string{"debit", "débito", "debet", "výdaj", "soll", "cargo"}, nil)
		pick(&s.CreditCol, i, h,
			[]string{"credit", "crédito", "kredit", "príjem", "příjem", "haben", "abono"}, nil)
		if i != s.DebitCol && i != s.CreditCol {
			pick(&s.AmountCol, i, h,
				[]string{"amount", "betrag", "čiastka", "částka", "importe"},
				[]string{"suma", "valor", "montante", "umsatz"})
		}
		pick(&s.CurrencyCol, i, h,
			[]string{"currency", "währung", "měna"},
			[]string{"mena", "ccy"})
		pick(&s.MerchantCol, i, h,
			[]string{"merchant", "obchodník", "payee", "protistrana", "empfänger"}, nil)
		pick(&s.ReferenceCol, i, h,
			[]string{"reference", "referencia", "variabilný", "variabilní", "referenz"},
			[]string{"vs", "ref"})
		pick(&s.CategoryCol, i, h,
			[]string{"categ", "kategór", "kategor"}, nil)
		if s.DescCol == -1 && i != s.DateCol && i != s.MerchantCol {
			pick(&s.DescCol, i, h,
				[]string{"descri", "popis", "verwendungszweck", "memo", "details", "poznámka"},
				[]string{"name", "nome", "text"})
		}
	}
	if s.DescCol == -1 {
		s.DescCol = s.MerchantCol
	}

	s.IsDoubleEntry = s.DebitCol != -1 && s.CreditCol != -1

	return s
}

// findHeaderRow locates the header row and its delimiter
func findHeaderRow(lines []string) (rune, int, error) {
	fallbackIndex, fallbackCount := -1, 0
	fallbackDelimiter := rune(0)

	keywordIndex, keywordCount, keywordScore := -1, 0, 0
	keywordDelimiter := rune(0)

	for i, line := range lines {
		if i > 20 {
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		lineLower := strings.ToLower(line)

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		keywordMatches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lineLower, kw) {
				keywordMatches++
			}
		}

		if keywordMatches > 0 {
			// Real headers have many columns; metadata lines have few.
			score := count*10 + keywordMatches
			if keywordIndex == -1 || score > keywordScore {
				keywordIndex, keywordCount, keywordScore = i, count, score
				keywordDelimiter = delimiter
			}
		} else if count > fallbackCount {
			fallbackIndex, fallbackCount = i, count
			fallbackDelimiter = delimiter
		}
	}

	if keywordIndex >= 0 && keywordCount >= 2 {
		return keywordDelimiter, keywordIndex, nil
	}
	if fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

var candidateDelimiters = []rune{';', '\t', ',', '|'}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter, bestCount := rune(0), 0
	for _, d := range candidateDelimiters {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestCount, bestDelimiter = count, d
		}
	}
	return bestDelimiter, bestCount
}

// Fingerprint hashes normalized header names so a known bank layout can be
// recognised on later uploads.
func Fingerprint(headers []string) string { return generateFingerprint(headers) }

func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// getSampleRows returns the first N data rows after the header
func getSampleRows(lines []string, delimiter rune, startLine, maxRows int) [][]string {
	if startLine >= len(lines) {
		return nil
	}
	reader := csv.NewReader(strings.NewReader(strings.Join(lines[startLine:], "\n")))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, record)
	}
	return rows
}
