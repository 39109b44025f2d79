package normalizer

import (
	"testing"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

func TestMerchantSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewMerchantSanitizer()

	tests := []struct {
		name           string
		input          string
		expectedName   string
		expectedCat    string
		expectedSubcat string
	}{
		{
			name:           "Tesco with card prefix",
			input:          "PLATBA KARTOU TESCO STORES SR 123456",
			expectedName:   "Tesco",
			expectedCat:    "Groceries",
			expectedSubcat: "Supermarket",
		},
		{
			name:           "Fresh supermarket",
			input:          "SUPERMARKET FRESH PLU",
			expectedName:   "Fresh",
			expectedCat:    "Groceries",
			expectedSubcat: "Supermarket",
		},
		{
			name:           "Netflix subscription",
			input:          "NETFLIX.COM",
			expectedName:   "Netflix",
			expectedCat:    "Entertainment",
			expectedSubcat: "Streaming",
		},
		{
			name:           "Bolt ride",
			input:          "BOLT.EU/O/2502 12.01.",
			expectedName:   "Bolt",
			expectedCat:    "Transport",
			expectedSubcat: "Rideshare",
		},
		{
			name:           "Bolt Food delivery",
			input:          "BOLT FOOD",
			expectedName:   "Bolt Food",
			expectedCat:    "Food & Drink",
			expectedSubcat: "Delivery",
		},
		{
			name:           "Pharmacy with diacritics",
			input:          "nákup Lekáreň Pod Hradom",
			expectedName:   "Pharmacy",
			expectedCat:    "Health",
			expectedSubcat: "Pharmacy",
		},
		{
			name:           "Unknown merchant gets title case",
			input:          "ŠTÚDIO KRÁSY 456789",
			expectedName:   "Štúdio Krásy",
			expectedCat:    "",
			expectedSubcat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizer.Sanitize(tt.input)

			if result.NormalizedName != tt.expectedName {
				t.Errorf("NormalizedName = %q, want %q", result.NormalizedName, tt.expectedName)
			}
			if result.Category != tt.expectedCat {
				t.Errorf("Category = %q, want %q", result.Category, tt.expectedCat)
			}
			if result.Subcategory != tt.expectedSubcat {
				t.Errorf("Subcategory = %q, want %q", result.Subcategory, tt.expectedSubcat)
			}
		})
	}
}

func TestCleanMerchantName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PLATBA KARTOU BILLA 123456", "BILLA"},
		{"POS STARBUCKS 12/01", "STARBUCKS"},
		{"NÁKUP KAUFLAND 3.4.", "KAUFLAND"},
		{"  LIDL  NITRA  ", "LIDL NITRA"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := cleanMerchantName(tt.input)
			if result != tt.expected {
				t.Errorf("cleanMerchantName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMerchantSanitizer_AddPatternTakesPrecedence(t *testing.T) {
	sanitizer := NewMerchantSanitizer()
	if err := sanitizer.AddPattern(`TESCO\s+EXPRESS`, "Tesco Express", "Groceries", "Convenience"); err != nil {
		t.Fatal(err)
	}
	if got := sanitizer.Sanitize("TESCO EXPRESS KOSICE").Subcategory; got != "Convenience" {
		t.Errorf("Subcategory = %q, want Convenience", got)
	}
	if err := sanitizer.AddPattern(`(`, "x", "", ""); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMerchantSanitizer_Annotate(t *testing.T) {
	candidates := []statement.Candidate{
		{Merchant: "SUPERMARKET FRESH PLU"},
		{Description: "Platba kartou SHELL 0042"},
		{Merchant: "TESCO", Category: "Already set"},
		{Description: "Prevod na účet"},
	}
	NewMerchantSanitizer().Annotate(candidates)

	want := []string{"Groceries", "Transport", "Already set", ""}
	for i, c := range candidates {
		if c.Category != want[i] {
			t.Errorf("candidate %d Category = %q, want %q", i, c.Category, want[i])
		}
	}
}
