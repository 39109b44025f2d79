package sniffer

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// SampleSize is how many leading bytes the detector looks at.
const SampleSize = 8 << 10

// Method records which signal decided a detection.
type Method string

const (
	MethodSignature Method = "signature"
	MethodExtension Method = "extension"
)

// Detection is the outcome of format detection.
type Detection struct {
	Descriptor statement.Descriptor
	Method     Method
	Score      int
	// ExtensionMismatch is set when the content decided a format other than
	// the one the file name suggests.
	ExtensionMismatch bool
}

// Content probe scores. A higher score means a more specific signature.
const (
	scorePDF        = 100
	scoreOOXML      = 90
	scoreOFX        = 90
	scoreQIF        = 90
	scoreOLE2       = 80
	scoreZipGeneric = 30
	scoreDelimited  = 60
	scoreLooseText  = 20
	scoreKeywords   = 10
)

var (
	magicPDF  = []byte("%PDF-")
	magicZIP  = []byte("PK\x03\x04")
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Detector chooses a parser descriptor for an upload. It is immutable and safe
// for concurrent use.
type Detector struct {
	descriptors []statement.Descriptor
	preferred   func(hint string) []statement.Format
}

// NewDetector returns a detector over the given descriptors.
func NewDetector(descriptors []statement.Descriptor) *Detector {
	ds := make([]statement.Descriptor, len(descriptors))
	copy(ds, descriptors)
	return &Detector{descriptors: ds}
}

// WithHintResolver sets the lookup from a bank hint to its preferred formats.
func (d *Detector) WithHintResolver(fn func(hint string) []statement.Format) *Detector {
	d.preferred = fn
	return d
}

// Detect picks a descriptor for filename and sample. A conclusive content
// signature wins over the extension; the extension decides only when content
// is inconclusive. The bank hint only breaks ties.
func (d *Detector) Detect(filename string, sample []byte, bankHint string) (Detection, error) {
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	ext := strings.ToLower(filepath.Ext(filename))
	hinted := d.hintOrder(bankHint)

	scores := ProbeContent(sample)
	var (
		best      []statement.Descriptor
		bestScore int
	)
	for _, desc := range d.descriptors {
		s := scores[desc.Format]
		switch {
		case s <= 0:
		case s > bestScore:
			best, bestScore = []statement.Descriptor{desc}, s
		case s == bestScore:
			best = append(best, desc)
		}
	}

	if len(best) > 0 {
		winner := d.breakTie(best, ext, hinted)
		return Detection{
			Descriptor:        winner,
			Method:            MethodSignature,
			Score:             bestScore,
			ExtensionMismatch: ext != "" && !winner.MatchesExtension(ext) && d.anyMatchesExtension(ext),
		}, nil
	}

	var byExt []statement.Descriptor
	for _, desc := range d.descriptors {
		if ext != "" && desc.MatchesExtension(ext) {
			byExt = append(byExt, desc)
		}
	}
	if len(byExt) == 0 {
		reason := "no content signature or extension matched"
		if len(bytes.TrimSpace(sample)) == 0 {
			reason = "file is empty"
		}
		return Detection{}, &statement.NotSupportedError{Filename: filename, Reason: reason}
	}
	return Detection{
		Descriptor: d.breakTie(byExt, "", hinted),
		Method:     MethodExtension,
	}, nil
}

// breakTie orders equally-scored descriptors by extension match, then the
// bank hint's preferred formats, then priority, then format name.
func (d *Detector) breakTie(cands []statement.Descriptor, ext string, hinted map[statement.Format]int) statement.Descriptor {
	if len(cands) == 1 {
		return cands[0]
	}
	rank := func(desc statement.Descriptor) int {
		if r, ok := hinted[desc.Format]; ok {
			return r
		}
		return len(hinted)
	}
	sorted := make([]statement.Descriptor, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ext != "" {
			am, bm := a.MatchesExtension(ext), b.MatchesExtension(ext)
			if am != bm {
				return am
			}
		}
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Format < b.Format
	})
	return sorted[0]
}

func (d *Detector) hintOrder(hint string) map[statement.Format]int {
	order := map[statement.Format]int{}
	if hint == "" || d.preferred == nil {
		return order
	}
	for i, f := range d.preferred(hint) {
		if _, seen := order[f]; !seen {
			order[f] = i
		}
	}
	return order
}

func (d *Detector) anyMatchesExtension(ext string) bool {
	for _, desc := range d.descriptors {
		if desc.MatchesExtension(ext) {
			return true
		}
	}
	return false
}

// ProbeContent scores how strongly sample looks like each format. Formats
// absent from the map scored zero.
func ProbeContent(sample []byte) map[statement.Format]int {
	scores := map[statement.Format]int{}
	if len(sample) == 0 {
		return scores
	}

	head := sample
	if len(head) > 1024 {
		head = head[:1024]
	}
	switch {
	case bytes.Contains(head, magicPDF):
		scores[statement.FormatPDF] = scorePDF
		return scores
	case bytes.HasPrefix(sample, magicZIP):
		switch {
		case bytes.Contains(sample, []byte("xl/")):
			scores[statement.FormatExcel] = scoreOOXML
		case bytes.Contains(sample, []byte("[Content_Types].xml")):
			scores[statement.FormatExcel] = scoreZipGeneric
		}
		return scores
	case bytes.HasPrefix(sample, magicOLE2):
		scores[statement.FormatExcel] = scoreOLE2
		return scores
	}

	text := bytes.TrimPrefix(sample, []byte("\xEF\xBB\xBF"))
	if looksBinary(text) {
		return scores
	}

	upper := bytes.ToUpper(head)
	if bytes.Contains(upper, []byte("OFXHEADER:")) || bytes.Contains(upper, []byte("<OFX>")) ||
		bytes.Contains(upper, []byte("<?OFX ")) {
		scores[statement.FormatOFX] = scoreOFX
	}

	lines := firstLines(string(text), 12)
	if len(lines) > 0 {
		first := strings.ToLower(lines[0])
		if strings.HasPrefix(first, "!type:") || strings.HasPrefix(first, "!account") ||
			strings.HasPrefix(first, "!option") || strings.HasPrefix(first, "!clear:") {
			scores[statement.FormatQIF] = scoreQIF
		}
	}

	if s := delimitedScore(lines); s > 0 {
		scores[statement.FormatCSV] = s
	}
	return scores
}

// delimitedScore rewards text whose lines share a delimiter with a stable
// field count.
func delimitedScore(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	best := 0
	for _, d := range candidateDelimiters {
		counts := map[int]int{}
		for _, l := range lines {
			if c := strings.Count(l, string(d)); c > 0 {
				counts[c]++
			}
		}
		top := 0
		for _, n := range counts {
			if n > top {
				top = n
			}
		}
		score := 0
		switch {
		case top >= 2:
			score = scoreDelimited
		case top == 1 && len(lines) == 1:
			score = scoreLooseText
		}
		if score > best {
			best = score
		}
	}
	if best == 0 {
		return 0
	}
	joined := strings.ToLower(strings.Join(lines, "\n"))
	for _, kw := range headerKeywords {
		if strings.Contains(joined, kw) {
			return best + scoreKeywords
		}
	}
	return best
}

func firstLines(s string, n int) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(strings.TrimRight(l, "\r"))
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

// looksBinary reports NUL bytes or a high share of control characters. Text in
// a single-byte code page is not valid UTF-8 but still counts as text.
func looksBinary(b []byte) bool {
	if bytes.IndexByte(b, 0) >= 0 {
		return true
	}
	if utf8.Valid(b) {
		return false
	}
	control := 0
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			control++
		}
	}
	return control*20 > len(b)
}
