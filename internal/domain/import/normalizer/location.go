package normalizer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// MerchantLocation is a combined merchant+place token split in two.
type MerchantLocation struct {
	Merchant string `json:"merchant"`
	Location string `json:"location,omitempty"`
}

// SuffixStripper removes legal-entity abbreviations ("s.r.o.", "GmbH") from
// the end of merchant names.
type SuffixStripper struct {
	suffixes []string // lowercased
	matcher  *ahocorasick.Matcher
}

// NewSuffixStripper builds a stripper over suffixes. Matching is case-insensitive.
func NewSuffixStripper(suffixes []string) *SuffixStripper {
	s := &SuffixStripper{}
	for _, suf := range suffixes {
		if suf = strings.ToLower(strings.TrimSpace(suf)); suf != "" {
			s.suffixes = append(s.suffixes, suf)
		}
	}
	s.matcher = ahocorasick.NewStringMatcher(s.suffixes)
	return s
}

// Strip removes trailing corporate suffixes on token boundaries, repeatedly,
// so "ACME HOLDING GmbH & Co. KG" style chains are handled. A name that
// consists only of a suffix is returned unchanged.
func (s *SuffixStripper) Strip(name string) string {
	name = strings.TrimSpace(name)
	if s == nil || len(s.suffixes) == 0 {
		return name
	}
	for {
		lower := strings.ToLower(name)
		if len(lower) != len(name) {
			return name
		}
		hits := s.matcher.Match([]byte(lower))
		best := ""
		for _, h := range hits {
			suf := s.suffixes[h]
			if len(suf) <= len(best) || !strings.HasSuffix(lower, suf) {
				continue
			}
			start := len(lower) - len(suf)
			if start == 0 || !isBoundary(lower[start-1]) {
				continue
			}
			best = suf
		}
		if best == "" {
			return name
		}
		trimmed := strings.TrimRight(name[:len(name)-len(best)], " ,&-")
		if trimmed == "" {
			return name
		}
		name = trimmed
	}
}

// IsSuffix reports whether token is one of the configured suffixes.
func (s *SuffixStripper) IsSuffix(token string) bool {
	if s == nil {
		return false
	}
	token = strings.ToLower(strings.TrimSpace(token))
	for _, suf := range s.suffixes {
		if suf == token {
			return true
		}
	}
	return false
}

func isBoundary(b byte) bool {
	return b == ' ' || b == ',' || b == '\t'
}

// Splitter separates a combined "MERCHANT PLACE" token. Rules are applied in
// order: explicit delimiter, known place names (longest first), then a
// last-token place pattern.
type Splitter struct {
	delimiter   string
	knownPlaces [][]string // each place as upper-cased tokens
	place       *regexp.Regexp
	suffixes    *SuffixStripper
}

// NewSplitter builds a splitter. Any rule may be empty. Known places with
// more words are tried first.
func NewSplitter(delimiter string, knownPlaces []string, place *regexp.Regexp, suffixes []string) *Splitter {
	s := &Splitter{
		delimiter: delimiter,
		place:     place,
		suffixes:  NewSuffixStripper(suffixes),
	}
	for _, p := range knownPlaces {
		if tokens := strings.Fields(strings.ToUpper(p)); len(tokens) > 0 {
			s.knownPlaces = append(s.knownPlaces, tokens)
		}
	}
	sort.SliceStable(s.knownPlaces, func(i, j int) bool {
		return len(s.knownPlaces[i]) > len(s.knownPlaces[j])
	})
	return s
}

// SplitMerchantLocation splits raw with a one-off splitter.
func SplitMerchantLocation(raw, delimiter string, knownPlaces []string, place *regexp.Regexp, suffixes []string) MerchantLocation {
	return NewSplitter(delimiter, knownPlaces, place, suffixes).Split(raw)
}

// Split separates raw into merchant and location and strips corporate
// suffixes from the merchant.
func (s *Splitter) Split(raw string) MerchantLocation {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return MerchantLocation{}
	}

	if s.delimiter != "" {
		if idx := strings.LastIndex(raw, s.delimiter); idx > 0 {
			merchant := strings.TrimSpace(raw[:idx])
			location := strings.TrimSpace(raw[idx+len(s.delimiter):])
			if merchant != "" && location != "" {
				return MerchantLocation{Merchant: s.suffixes.Strip(merchant), Location: location}
			}
		}
	}

	tokens := strings.Fields(raw)
	for _, place := range s.knownPlaces {
		if len(place) >= len(tokens) {
			continue
		}
		tail := tokens[len(tokens)-len(place):]
		if tokensEqualFold(tail, place) {
			return MerchantLocation{
				Merchant: s.suffixes.Strip(strings.Join(tokens[:len(tokens)-len(place)], " ")),
				Location: strings.Join(tail, " "),
			}
		}
	}

	if s.place != nil && len(tokens) >= 2 {
		last := tokens[len(tokens)-1]
		if s.place.MatchString(last) && !s.suffixes.IsSuffix(last) {
			return MerchantLocation{
				Merchant: s.suffixes.Strip(strings.Join(tokens[:len(tokens)-1], " ")),
				Location: last,
			}
		}
	}

	return MerchantLocation{Merchant: s.suffixes.Strip(raw)}
}

// StripCorporateSuffixes is Strip with a one-off stripper.
func StripCorporateSuffixes(name string, suffixes []string) string {
	return NewSuffixStripper(suffixes).Strip(name)
}

func tokensEqualFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
