package bankconfig

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the bank configs shipped with the binary.
func Builtin() ([]BankConfig, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("failed to read builtin bank configs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	configs := make([]BankConfig, 0, len(names))
	for _, name := range names {
		data, err := builtinFS.ReadFile("builtin/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read builtin bank config %s: %w", name, err)
		}
		cfg, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// LoadSet builds a Set from the builtin configs overlaid with every file in
// dir. An empty dir loads only the builtins.
func LoadSet(dir string) (*Set, error) {
	configs, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		extra, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		configs = append(configs, extra...)
	}
	return NewSet(configs...)
}

// MustBuiltinSet is LoadSet("") for tests and tools; it panics on error.
func MustBuiltinSet() *Set {
	s, err := LoadSet("")
	if err != nil {
		panic(err)
	}
	return s
}
