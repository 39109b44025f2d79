package bankconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// GenericName is the fallback config used when a hint resolves to nothing.
const GenericName = "generic"

// Set holds compiled configs addressable by name, bank and alias. A Set is
// built once and read concurrently afterwards.
type Set struct {
	byName   map[string]*Compiled
	byKey    map[string]string // lowercased name/bank/alias -> name
	keys     []string
	matcher  *ahocorasick.Matcher
	fallback string
}

// NewSet compiles cfgs into a Set. Later configs replace earlier ones with the
// same name.
func NewSet(cfgs ...BankConfig) (*Set, error) {
	s := &Set{
		byName:   make(map[string]*Compiled, len(cfgs)),
		byKey:    make(map[string]string),
		fallback: GenericName,
	}
	for i := range cfgs {
		compiled, err := cfgs[i].Compile()
		if err != nil {
			return nil, err
		}
		s.byName[strings.ToLower(compiled.Name())] = compiled
	}
	s.index()
	return s, nil
}

func (s *Set) index() {
	s.byKey = make(map[string]string)
	for name, c := range s.byName {
		s.byKey[name] = name
		if b := strings.ToLower(strings.TrimSpace(c.Config.Bank)); b != "" {
			s.byKey[b] = name
		}
		for _, a := range c.Config.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				s.byKey[a] = name
			}
		}
	}
	s.keys = s.keys[:0]
	for k := range s.byKey {
		s.keys = append(s.keys, k)
	}
	// Longest key first so the scan prefers "tatra banka" over "banka".
	sort.Slice(s.keys, func(i, j int) bool {
		if len(s.keys[i]) != len(s.keys[j]) {
			return len(s.keys[i]) > len(s.keys[j])
		}
		return s.keys[i] < s.keys[j]
	})
	s.matcher = ahocorasick.NewStringMatcher(s.keys)
}

// Lookup finds a config by exact name, bank or alias, and failing that by the
// longest name, bank or alias contained in hint.
func (s *Set) Lookup(hint string) (*Compiled, bool) {
	key := strings.ToLower(strings.TrimSpace(hint))
	if key == "" {
		return nil, false
	}
	if name, ok := s.byKey[key]; ok {
		return s.byName[name], true
	}
	hits := s.matcher.Match([]byte(key))
	if len(hits) == 0 {
		return nil, false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return s.byName[s.byKey[s.keys[best]]], true
}

// Resolve returns the config for hint, or the generic fallback (nil when the
// set has none).
func (s *Set) Resolve(hint string) *Compiled {
	if c, ok := s.Lookup(hint); ok {
		return c
	}
	return s.byName[s.fallback]
}

// Get returns a config by exact name.
func (s *Set) Get(name string) (*Compiled, error) {
	c, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("bank config %q not found", name)
	}
	return c, nil
}

// PreferredFormats returns the formats the hinted config lists, in order. It
// returns nil when the hint does not resolve.
func (s *Set) PreferredFormats(hint string) []statement.Format {
	c, ok := s.Lookup(hint)
	if !ok {
		return nil
	}
	out := make([]statement.Format, 0, len(c.Config.Formats))
	for _, f := range c.Config.Formats {
		out = append(out, statement.Format(strings.ToLower(f)))
	}
	return out
}

// Names returns the config names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for _, c := range s.byName {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configs.
func (s *Set) Len() int { return len(s.byName) }
