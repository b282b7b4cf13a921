package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Category classifies a catalog entry.
type Category string

const (
	CategoryPlant    Category = "plant"
	CategoryNonPlant Category = "non_plant"
)

// Entry is one detectable item with its trait signature.
type Entry struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Category        Category `yaml:"category" json:"category"`
	Description     string   `yaml:"description" json:"description"`
	Characteristics []string `yaml:"characteristics" json:"characteristics"`
	BaseConfidence  float64  `yaml:"base_confidence" json:"base_confidence"`
	// Image is the example asset path, relative to the examples directory.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`
}

// IsPlant reports whether the entry belongs to the plant category.
func (e Entry) IsPlant() bool {
	return e.Category == CategoryPlant
}

// Catalog is an immutable, ordered registry of entries.
type Catalog struct {
	version string
	entries []Entry
	byID    map[string]int
	tags    []string
}

type catalogFile struct {
	Version string  `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// New validates and freezes the given entries. Characteristics are normalised
// and deduplicated; declaration order is preserved.
func New(version string, entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog: no entries")
	}

	c := &Catalog{
		version: version,
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	seenTags := make(map[string]struct{})

	for i, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("catalog: entry %d has no id", i)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", e.ID)
		}
		if e.Category != CategoryPlant && e.Category != CategoryNonPlant {
			return nil, fmt.Errorf("catalog: entry %q has unknown category %q", e.ID, e.Category)
		}
		if e.BaseConfidence <= 0 || e.BaseConfidence > 1 {
			return nil, fmt.Errorf("catalog: entry %q base confidence %v outside (0,1]", e.ID, e.BaseConfidence)
		}

		tags := NormalizeTags(e.Characteristics)
		if len(tags) == 0 {
			return nil, fmt.Errorf("catalog: entry %q has no characteristics", e.ID)
		}
		e.Characteristics = tags
		for _, tag := range tags {
			if _, ok := seenTags[tag]; !ok {
				seenTags[tag] = struct{}{}
				c.tags = append(c.tags, tag)
			}
		}

		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	return c, nil
}

// LoadFile reads a YAML catalog of the form {version, entries}.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return New(file.Version, file.Entries)
}

// Version returns the data set version the catalog was built from.
func (c *Catalog) Version() string {
	return c.version
}

// AllEntries returns the entries in declaration order. The slice is a copy.
func (c *Catalog) AllEntries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		e.Characteristics = append([]string(nil), e.Characteristics...)
		out[i] = e
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// At returns the i-th entry in declaration order.
func (c *Catalog) At(i int) Entry {
	return c.entries[i]
}

// Get looks up an entry by id.
func (c *Catalog) Get(id string) (Entry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Tags returns every distinct characteristic in first-seen order.
func (c *Catalog) Tags() []string {
	return append([]string(nil), c.tags...)
}

// NormalizeTag folds a tag to the canonical lowercase form used for matching.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(tag)))
}

// NormalizeTags normalises tags, dropping blanks and duplicates.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ObservationSet is the unordered set of tags observed in one image.
type ObservationSet []string

// NewObservationSet normalises tags into an observation set.
func NewObservationSet(tags ...string) ObservationSet {
	return ObservationSet(NormalizeTags(tags))
}
