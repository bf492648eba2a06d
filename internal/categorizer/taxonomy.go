package categorizer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrExcludedCategory is returned for categories the agent may never assign.
var ErrExcludedCategory = errors.New("category is excluded from automatic assignment")

// Category is one entry of the closed category list.
type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Excluded    bool   `yaml:"excluded"`
}

// Taxonomy is the closed list of categories the agent chooses from.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
	index      map[string]Category
}

// LoadTaxonomy reads and validates a taxonomy YAML file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: read %s: %w", path, err)
	}
	t, err := ParseTaxonomy(data)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: %s: %w", path, err)
	}
	return t, nil
}

// ParseTaxonomy decodes and validates taxonomy YAML.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	t.index = make(map[string]Category, len(t.Categories))
	for i, c := range t.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d has no name", i+1)
		}
		key := normalizeCategory(name)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		c.Name = name
		t.Categories[i] = c
		t.index[key] = c
	}
	return &t, nil
}

// Lookup returns the canonical spelling of category.
func (t *Taxonomy) Lookup(category string) (Category, bool) {
	c, ok := t.index[normalizeCategory(category)]
	return c, ok
}

// Validate checks that category is in the list and may be assigned.
func (t *Taxonomy) Validate(category string) error {
	c, ok := t.Lookup(category)
	if !ok {
		return fmt.Errorf("invalid category: %q (normalized: %q)", category, normalizeCategory(category))
	}
	if c.Excluded {
		return fmt.Errorf("%q: %w", c.Name, ErrExcludedCategory)
	}
	return nil
}

// Assignable lists the categories the agent may choose.
func (t *Taxonomy) Assignable() []Category {
	out := make([]Category, 0, len(t.Categories))
	for _, c := range t.Categories {
		if !c.Excluded {
			out = append(out, c)
		}
	}
	return out
}

// normalizeCategory converts to uppercase and trims whitespace for
// case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
