package dedup

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// stopWords are dropped before keyword comparison: filler words and the
// boilerplate banks print on every card line.
var stopWords = map[string]bool{
	// English
	"the": true, "and": true, "of": true, "for": true, "to": true, "in": true, "at": true,
	"on": true, "by": true, "with": true, "from": true, "payment": true, "card": true,
	"purchase": true, "pos": true, "online": true, "transaction": true, "debit": true,
	"credit": true, "transfer": true, "ref": true,
	// Slovak / Czech
	"a": true, "v": true, "na": true, "za": true, "do": true, "pre": true, "od": true,
	"transakcia": true, "transakce": true, "platba": true, "platobnou": true,
	"platebni": true, "kartou": true, "karta": true, "prevod": true, "nakup": true,
	"miesto": true, "suma": true,
	// German / Portuguese
	"und": true, "der": true, "die": true, "das": true, "zahlung": true, "karte": true,
	"de": true, "da": true, "compra": true, "pagamento": true, "cartao": true,
}

// foldDiacritics maps the accented letters of Central-European statements to
// ASCII so "Nákup" and "NAKUP" compare equal.
var foldDiacritics = strings.NewReplacer(
	"á", "a", "ä", "a", "č", "c", "ď", "d", "é", "e", "ě", "e", "í", "i",
	"ĺ", "l", "ľ", "l", "ň", "n", "ó", "o", "ô", "o", "ŕ", "r", "ř", "r",
	"š", "s", "ť", "t", "ú", "u", "ů", "u", "ý", "y", "ž", "z", "ö", "o",
	"ü", "u", "ß", "ss", "ã", "a", "ç", "c", "õ", "o", "ê", "e",
)

// keywords returns the lowercased, stop-word-free token set of the given texts.
// Single characters and pure numbers are not keywords.
func keywords(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, text := range texts {
		folded := foldDiacritics.Replace(strings.ToLower(text))
		for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len(tok) < 2 || stopWords[tok] || isNumber(tok) {
				continue
			}
			set[tok] = struct{}{}
		}
	}
	return set
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// jaccard returns |a ∩ b| / |a ∪ b|, and 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// reasons explains a match. The fuzzy merchant reasons are informational and
// never change the score.
func reasons(c statement.Candidate, x ExistingTransaction, diff decimal.Decimal, days int, textSim float64) []string {
	var out []string
	if diff.IsZero() {
		out = append(out, "same amount")
	} else {
		out = append(out, "amount within tolerance")
	}
	switch days {
	case 0:
		out = append(out, "same date")
	case 1:
		out = append(out, "date within 1 day")
	default:
		out = append(out, fmt.Sprintf("date within %d days", days))
	}
	if textSim > 0 {
		out = append(out, fmt.Sprintf("description keyword overlap (%.0f%%)", textSim*100))
	}
	if merchantNamedIn(c.Merchant, x.Description) || merchantNamedIn(x.Merchant, c.Description) {
		out = append(out, "merchant named in description")
	}
	if similarMerchant(c.Merchant, x.Merchant) {
		out = append(out, "similar merchant name")
	}
	return out
}

// minMerchantLen keeps very short merchant names from matching by accident.
const minMerchantLen = 4

// merchantNamedIn reports whether every character of merchant occurs in
// description in order, ignoring case and diacritics.
func merchantNamedIn(merchant, description string) bool {
	merchant = strings.TrimSpace(merchant)
	if len(merchant) < minMerchantLen || description == "" {
		return false
	}
	return fuzzy.MatchNormalizedFold(merchant, description)
}

// similarMerchant compares two merchant names by edit distance: 80% of the
// longer name must survive.
func similarMerchant(a, b string) bool {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if len(a) < minMerchantLen || len(b) < minMerchantLen {
		return false
	}
	if a == b {
		return true
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	distance := fuzzy.LevenshteinDistance(a, b)
	return 100*(longest-distance)/longest >= 80
}
