package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const exampleSuffix = "_Export.json"

//go:embed examples/*.json
var examplesFS embed.FS

// Examples returns the names of the bundled example bots.
func Examples() []string {
	entries, err := fs.ReadDir(examplesFS, "examples")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), exampleSuffix) {
			names = append(names, strings.TrimSuffix(e.Name(), exampleSuffix))
		}
	}
	sort.Strings(names)
	return names
}

// LoadExample parses the bundled example called name, e.g. "OrderFlowers".
func LoadExample(name string) (*Document, error) {
	name = strings.TrimSpace(name)
	fileName := name + exampleSuffix
	data, err := examplesFS.ReadFile(path.Join("examples", fileName))
	if err != nil {
		return nil, fmt.Errorf("schema: unknown example %q (available: %s)", name, strings.Join(Examples(), ", "))
	}
	return Parse(fileName, data)
}
