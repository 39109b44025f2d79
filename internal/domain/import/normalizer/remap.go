package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// Match types for merchant rules.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// MerchantRule renames a merchant and optionally sets a category whenever the
// raw merchant (or description, when no merchant was parsed) matches Pattern.
type MerchantRule struct {
	Pattern      string  `json:"pattern"`
	MatchType    string  `json:"match_type"`
	MerchantName string  `json:"merchant_name"`
	Category     *string `json:"category,omitempty"`
}

// Override replaces fields of a single candidate, addressed by index.
type Override struct {
	Merchant *string `json:"merchant,omitempty"`
	Category *string `json:"category,omitempty"`
}

// Mappings are the remapping instructions given at confirm time.
type Mappings struct {
	ByIndex map[int]Override `json:"by_index,omitempty"`
	Rules   []MerchantRule   `json:"rules,omitempty"`
}

// Empty reports whether m carries no instructions.
func (m Mappings) Empty() bool { return len(m.ByIndex) == 0 && len(m.Rules) == 0 }

type compiledRule struct {
	MerchantRule
	re    *regexp.Regexp
	upper string
}

// Remapper applies merchant rules and per-index overrides to candidates.
// Rules are tried in order and the first match wins; an index override is
// applied last and beats any rule.
type Remapper struct {
	rules []compiledRule
}

// NewRemapper compiles rules. An unknown match type or a bad regex is an error.
func NewRemapper(rules []MerchantRule) (*Remapper, error) {
	r := &Remapper{rules: make([]compiledRule, 0, len(rules))}
	for i, rule := range rules {
		cr := compiledRule{MerchantRule: rule, upper: strings.ToUpper(rule.Pattern)}
		switch rule.MatchType {
		case MatchExact, MatchContains:
		case MatchRegex:
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("failed to compile rule %d: %w", i, err)
			}
			cr.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown match type %q", i, rule.MatchType)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("rule %d: empty pattern", i)
		}
		r.rules = append(r.rules, cr)
	}
	return r, nil
}

// Match returns the first rule matching raw.
func (r *Remapper) Match(raw string) (MerchantRule, bool) {
	if r == nil || raw == "" {
		return MerchantRule{}, false
	}
	upper := strings.ToUpper(raw)
	for _, rule := range r.rules {
		if rule.matches(raw, upper) {
			return rule.MerchantRule, true
		}
	}
	return MerchantRule{}, false
}

func (r compiledRule) matches(raw, upper string) bool {
	switch r.MatchType {
	case MatchExact:
		return strings.EqualFold(strings.TrimSpace(raw), strings.TrimSpace(r.Pattern))
	case MatchContains:
		return strings.Contains(upper, r.upper)
	case MatchRegex:
		return r.re.MatchString(raw)
	}
	return false
}

// Apply returns a remapped copy of candidates. Overrides addressing indices
// that do not exist are ignored; callers validate selections separately.
func (r *Remapper) Apply(candidates []statement.Candidate, overrides map[int]Override) []statement.Candidate {
	out := make([]statement.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		c := &out[i]
		source := c.Merchant
		if source == "" {
			source = c.Description
		}
		if rule, ok := r.Match(source); ok {
			if rule.MerchantName != "" {
				c.Merchant = rule.MerchantName
			}
			if rule.Category != nil {
				c.Category = *rule.Category
			}
		}
		if o, ok := overrides[c.Index]; ok {
			if o.Merchant != nil {
				c.Merchant = *o.Merchant
			}
			if o.Category != nil {
				c.Category = *o.Category
			}
		}
	}
	return out
}
