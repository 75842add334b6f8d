package taxonomy

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// overrideFile is the YAML shape of a taxonomy override. All sections are
// optional; a section that is present replaces the corresponding part of the
// default taxonomy wholesale (categories are replaced per-category).
type overrideFile struct {
	Categories     map[Category][]string `yaml:"categories"`
	FalsePositives []string              `yaml:"false_positives"`
	Weights        map[Category]int      `yaml:"weights"`
	Thresholds     *Thresholds           `yaml:"thresholds"`
}

// Load reads a taxonomy override YAML file from disk, merges it over the
// built-in defaults, and validates the result.
func Load(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader parses a taxonomy override from r, merges it over the
// built-in defaults, and validates the result. Useful in tests where
// taxonomies are constructed from string literals.
func LoadFromReader(r io.Reader) (*Taxonomy, error) {
	var of overrideFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown top-level keys to catch typos
	if err := dec.Decode(&of); err != nil {
		// An empty file is a valid override: it changes nothing.
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("taxonomy: decode yaml: %w", err)
		}
	}

	t := Default()
	for cat, phrases := range of.Categories {
		t.Categories[cat] = phrases
	}
	if of.FalsePositives != nil {
		t.FalsePositives = of.FalsePositives
	}
	for cat, w := range of.Weights {
		t.Weights[cat] = w
	}
	if of.Thresholds != nil {
		t.Thresholds = *of.Thresholds
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
