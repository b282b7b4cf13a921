package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinPreservesDeclarationOrder(t *testing.T) {
	c := Builtin()
	entries := c.AllEntries()
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	if entries[0].ID != "rose" || entries[9].ID != "ceramic-pot" {
		t.Fatalf("unexpected order: first=%s last=%s", entries[0].ID, entries[9].ID)
	}
	for _, e := range entries {
		if len(e.Characteristics) == 0 {
			t.Fatalf("entry %s has no characteristics", e.ID)
		}
	}
}

func TestAllEntriesReturnsCopy(t *testing.T) {
	c := Builtin()
	entries := c.AllEntries()
	entries[0].Characteristics[0] = "mutated"
	entries[0].Name = "mutated"

	again := c.AllEntries()
	if again[0].Name != "Rose" || again[0].Characteristics[0] != "petals" {
		t.Fatalf("catalog was mutated through AllEntries: %+v", again[0])
	}
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	valid := Entry{ID: "a", Name: "A", Category: CategoryPlant, Characteristics: []string{"x"}, BaseConfidence: 0.5}

	cases := map[string][]Entry{
		"empty":              nil,
		"duplicate id":       {valid, valid},
		"no characteristics": {{ID: "b", Category: CategoryPlant, Characteristics: []string{" ", ""}, BaseConfidence: 0.5}},
		"zero confidence":    {{ID: "b", Category: CategoryPlant, Characteristics: []string{"x"}}},
		"confidence above 1": {{ID: "b", Category: CategoryPlant, Characteristics: []string{"x"}, BaseConfidence: 1.2}},
		"unknown category":   {{ID: "b", Category: "mineral", Characteristics: []string{"x"}, BaseConfidence: 0.5}},
		"missing id":         {{Category: CategoryPlant, Characteristics: []string{"x"}, BaseConfidence: 0.5}},
	}

	for name, entries := range cases {
		if _, err := New("test", entries); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestNewNormalisesCharacteristics(t *testing.T) {
	c, err := New("test", []Entry{{
		ID:              "rose",
		Category:        CategoryPlant,
		Characteristics: []string{" Petals ", "petals", "GREEN Stem"},
		BaseConfidence:  0.9,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, ok := c.Get("rose")
	if !ok {
		t.Fatal("expected rose to be present")
	}
	if strings.Join(e.Characteristics, ",") != "petals,green stem" {
		t.Fatalf("unexpected characteristics: %v", e.Characteristics)
	}
}

func TestTagsAreDistinctInFirstSeenOrder(t *testing.T) {
	tags := Builtin().Tags()
	seen := make(map[string]bool)
	for _, tag := range tags {
		if seen[tag] {
			t.Fatalf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}
	if tags[0] != "petals" {
		t.Fatalf("expected first tag to be petals, got %q", tags[0])
	}
	// green stem, hard surface and cylindrical appear twice, manufactured three times.
	if len(tags) != 45 {
		t.Fatalf("expected 45 distinct tags, got %d", len(tags))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `version: "v7"
entries:
  - id: fern
    name: Fern
    category: plant
    characteristics: ["feathery leaves", "green fronds"]
    base_confidence: 0.9
  - id: rock
    name: Rock
    category: non_plant
    characteristics: ["hard surface"]
    base_confidence: 0.94
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Version() != "v7" || c.Len() != 2 {
		t.Fatalf("unexpected catalog: version=%s len=%d", c.Version(), c.Len())
	}
	if rock, _ := c.Get("rock"); rock.IsPlant() {
		t.Fatal("rock must not be a plant")
	}
}
