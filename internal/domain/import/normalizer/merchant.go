// Package normalizer cleans merchant names on imported candidates: it splits
// merchant and place, strips legal-entity noise, suggests a category and
// applies user remapping rules at confirm time.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// MerchantInfo contains normalized merchant information
type MerchantInfo struct {
	OriginalName   string `json:"original_name"`
	NormalizedName string `json:"normalized_name"`
	Category       string `json:"category,omitempty"`
	Subcategory    string `json:"subcategory,omitempty"`
}

// MerchantPattern defines a pattern for matching and normalizing merchants
type MerchantPattern struct {
	Pattern     *regexp.Regexp
	Name        string
	Category    string
	Subcategory string
}

// MerchantSanitizer normalizes merchant names and detects categories
type MerchantSanitizer struct {
	patterns []MerchantPattern
}

// NewMerchantSanitizer creates a new sanitizer with common merchant patterns
func NewMerchantSanitizer() *MerchantSanitizer {
	return &MerchantSanitizer{
		patterns: defaultMerchantPatterns(),
	}
}

// Sanitize normalizes a merchant name and detects its category
func (s *MerchantSanitizer) Sanitize(rawMerchant string) MerchantInfo {
	result := MerchantInfo{
		OriginalName:   rawMerchant,
		NormalizedName: rawMerchant,
	}

	cleaned := cleanMerchantName(rawMerchant)
	result.NormalizedName = cleaned

	upper := strings.ToUpper(cleaned)
	for _, pattern := range s.patterns {
		if pattern.Pattern.MatchString(upper) {
			result.NormalizedName = pattern.Name
			result.Category = pattern.Category
			result.Subcategory = pattern.Subcategory
			return result
		}
	}

	result.NormalizedName = titleCase(cleaned)
	return result
}

// Annotate fills Category on candidates that have none, using the merchant
// name or, failing that, the description. Merchant names are left as parsed.
func (s *MerchantSanitizer) Annotate(candidates []statement.Candidate) {
	for i := range candidates {
		c := &candidates[i]
		if c.Category != "" {
			continue
		}
		source := c.Merchant
		if source == "" {
			source = c.Description
		}
		if source == "" {
			continue
		}
		if info := s.Sanitize(source); info.Category != "" {
			c.Category = info.Category
		}
	}
}

// AddPattern adds a custom merchant pattern. Custom patterns are checked
// before the built-in ones.
func (s *MerchantSanitizer) AddPattern(pattern string, name, category, subcategory string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append([]MerchantPattern{{
		Pattern:     re,
		Name:        name,
		Category:    category,
		Subcategory: subcategory,
	}}, s.patterns...)
	return nil
}

var (
	merchantPrefixes = []string{
		"PLATBA KARTOU: ", "PLATBA KARTOU ", "BEZHOTOVOSTNA PLATBA ", "PLATBA ",
		"NAKUP ", "NÁKUP ", "TRANSAKCIA ",
		"KARTENZAHLUNG ", "LASTSCHRIFT ",
		"VISA ", "MASTERCARD ", "MAESTRO ",
		"PURCHASE ", "PAYMENT ", "POS ",
	}
	trailingRef   = regexp.MustCompile(`\s+\d{4,}$`)
	trailingDate  = regexp.MustCompile(`\s+\d{1,2}[/.]\d{1,2}[/.]?$`)
	repeatedSpace = regexp.MustCompile(`\s+`)
)

// cleanMerchantName removes common noise from merchant names
func cleanMerchantName(raw string) string {
	result := strings.TrimSpace(raw)

	upper := strings.ToUpper(result)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) && len(upper) == len(result) {
			result = result[len(prefix):]
			break
		}
	}

	result = trailingRef.ReplaceAllString(result, "")
	result = trailingDate.ReplaceAllString(result, "")
	result = repeatedSpace.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}

// titleCase converts a string to title case
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}

// defaultMerchantPatterns returns common merchant patterns for Slovakia,
// Czechia and neighbours.
func defaultMerchantPatterns() []MerchantPattern {
	return []MerchantPattern{
		// Groceries
		{regexp.MustCompile(`TESCO`), "Tesco", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bBILLA\b`), "Billa", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bLIDL\b`), "Lidl", "Groceries", "Supermarket"},
		{regexp.MustCompile(`KAUFLAND`), "Kaufland", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bFRESH\b`), "Fresh", "Groceries", "Supermarket"},
		{regexp.MustCompile(`COOP\s*JEDNOTA|\bJEDNOTA\b`), "Coop Jednota", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bTERNO\b`), "Terno", "Groceries", "Supermarket"},
		{regexp.MustCompile(`\bALBERT\b`), "Albert", "Groceries", "Supermarket"},

		// Drugstores and pharmacies
		{regexp.MustCompile(`\bDM\b|DM\s*DROGERIE`), "dm", "Health", "Drugstore"},
		{regexp.MustCompile(`\bTETA\b`), "Teta", "Health", "Drugstore"},
		{regexp.MustCompile(`DR\.?\s*MAX`), "Dr.Max", "Health", "Pharmacy"},
		{regexp.MustCompile(`\bBENU\b`), "Benu", "Health", "Pharmacy"},
		{regexp.MustCompile(`LEK[AÁ]RE[NŇ]|L[EÉ]K[AÁ]RNA|APOTHEKE`), "Pharmacy", "Health", "Pharmacy"},

		// Food & drink (delivery first so UBER EATS and BOLT FOOD win over rides)
		{regexp.MustCompile(`UBER\s*EATS`), "Uber Eats", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`BOLT\s*FOOD`), "Bolt Food", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`\bWOLT\b`), "Wolt", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`FOODORA`), "Foodora", "Food & Drink", "Delivery"},
		{regexp.MustCompile(`MC\s*DONALDS|MCDONALD`), "McDonald's", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`\bKFC\b`), "KFC", "Food & Drink", "Fast Food"},
		{regexp.MustCompile(`STARBUCKS`), "Starbucks", "Food & Drink", "Coffee"},

		// Transport
		{regexp.MustCompile(`\bUBER\b`), "Uber", "Transport", "Rideshare"},
		{regexp.MustCompile(`\bBOLT\b`), "Bolt", "Transport", "Rideshare"},
		{regexp.MustCompile(`SLOVNAFT`), "Slovnaft", "Transport", "Fuel"},
		{regexp.MustCompile(`\bSHELL\b`), "Shell", "Transport", "Fuel"},
		{regexp.MustCompile(`\bOMV\b`), "OMV", "Transport", "Fuel"},
		{regexp.MustCompile(`\bMOL\b`), "MOL", "Transport", "Fuel"},
		{regexp.MustCompile(`\bZSSK\b|ZELEZNICNA SPOLOCNOST`), "ZSSK", "Transport", "Train"},
		{regexp.MustCompile(`RYANAIR`), "Ryanair", "Transport", "Flights"},
		{regexp.MustCompile(`WIZZ\s*AIR`), "Wizz Air", "Transport", "Flights"},

		// Utilities and telecom
		{regexp.MustCompile(`\bZSE\b`), "ZSE", "Utilities", "Electricity"},
		{regexp.MustCompile(`\bSPP\b`), "SPP", "Utilities", "Gas"},
		{regexp.MustCompile(`ORANGE`), "Orange", "Utilities", "Telecom"},
		{regexp.MustCompile(`TELEKOM`), "Telekom", "Utilities", "Telecom"},
		{regexp.MustCompile(`\bO2\b`), "O2", "Utilities", "Telecom"},
		{regexp.MustCompile(`\b4KA\b`), "4ka", "Utilities", "Telecom"},

		// Shopping
		{regexp.MustCompile(`\bIKEA\b`), "IKEA", "Shopping", "Home"},
		{regexp.MustCompile(`\bALZA\b`), "Alza", "Shopping", "Electronics"},
		{regexp.MustCompile(`DATART`), "Datart", "Shopping", "Electronics"},
		{regexp.MustCompile(`\bNAY\b`), "Nay", "Shopping", "Electronics"},
		{regexp.MustCompile(`AMAZON`), "Amazon", "Shopping", "Online"},
		{regexp.MustCompile(`PANTA\s*RHEI`), "Panta Rhei", "Shopping", "Books"},
		{regexp.MustCompile(`MARTINUS`), "Martinus", "Shopping", "Books"},

		// Entertainment and travel
		{regexp.MustCompile(`NETFLIX`), "Netflix", "Entertainment", "Streaming"},
		{regexp.MustCompile(`SPOTIFY`), "Spotify", "Entertainment", "Streaming"},
		{regexp.MustCompile(`APPLE\.COM|APPLE\s*MUSIC|ITUNES`), "Apple", "Entertainment", "Streaming"},
		{regexp.MustCompile(`GOOGLE\s*\*|GOOGLE\s*PLAY`), "Google", "Entertainment", "Apps"},
		{regexp.MustCompile(`BOOKING\.COM|\bBOOKING\b`), "Booking.com", "Travel", "Accommodation"},

		// Finance
		{regexp.MustCompile(`REVOLUT`), "Revolut", "Finance", "Digital Bank"},
		{regexp.MustCompile(`PAYPAL`), "PayPal", "Finance", "Payment"},
		{regexp.MustCompile(`BANKOMAT|ATM\b|VYBER`), "ATM", "Finance", "Cash"},
	}
}
