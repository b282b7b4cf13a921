package matcher

import (
	"math"
	"testing"

	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/random"
)

// firstEntryPolicy always falls back to the entry at index.
type firstEntryPolicy struct {
	index int
	calls int
}

func (p *firstEntryPolicy) Choose(c *catalog.Catalog) catalog.Entry {
	p.calls++
	return c.At(p.index)
}

func roseCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("test", []catalog.Entry{{
		ID:              "rose",
		Name:            "Rose",
		Category:        catalog.CategoryPlant,
		Characteristics: []string{"petals", "thorns", "green stem"},
		BaseConfidence:  0.92,
	}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestFullCoverageYieldsBaseConfidence(t *testing.T) {
	c := catalog.Builtin()
	m := New(c, Config{Policy: &firstEntryPolicy{}})

	for _, e := range c.AllEntries() {
		res := m.Match(catalog.ObservationSet(e.Characteristics))
		if res.IsFallback || res.Entry.ID != e.ID {
			t.Fatalf("%s: unexpected result %+v", e.ID, res)
		}
		if math.Abs(res.Score-e.BaseConfidence) > 1e-9 {
			t.Fatalf("%s: expected score %v, got %v", e.ID, e.BaseConfidence, res.Score)
		}
	}
}

func TestFullCoverageSelectsFirstDeclaredOnTie(t *testing.T) {
	c, err := catalog.New("test", []catalog.Entry{
		{ID: "a", Category: catalog.CategoryPlant, Characteristics: []string{"leaves"}, BaseConfidence: 0.8},
		{ID: "b", Category: catalog.CategoryNonPlant, Characteristics: []string{"leaves"}, BaseConfidence: 0.8},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	m := New(c, Config{Policy: &firstEntryPolicy{index: 1}})

	for i := 0; i < 5; i++ {
		res := m.Match(catalog.NewObservationSet("leaves"))
		if res.Entry.ID != "a" || res.IsFallback {
			t.Fatalf("expected a without fallback, got %+v", res)
		}
	}
}

func TestEmptyObservationsAlwaysFallBack(t *testing.T) {
	c := catalog.Builtin()
	m := New(c, Config{Policy: &RandomPolicy{Rand: random.NewLockedRand(7)}})

	for i := 0; i < 50; i++ {
		res := m.Match(nil)
		if !res.IsFallback {
			t.Fatalf("expected fallback for empty observations, got %+v", res)
		}
		if _, ok := c.Get(res.Entry.ID); !ok {
			t.Fatalf("fallback entry %q not in catalog", res.Entry.ID)
		}
		if res.Score != 0 {
			t.Fatalf("expected zero score, got %v", res.Score)
		}
	}
}

func TestSubstringContainment(t *testing.T) {
	rose, _ := roseCatalog(t).Get("rose")
	got := Score(rose, catalog.NewObservationSet("green stem and leaves"))
	want := 0.92 / 3
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if Score(rose, catalog.NewObservationSet("GREEN STEM texture")) == 0 {
		t.Fatal("expected case-insensitive containment")
	}
	if Score(rose, catalog.NewObservationSet("stem")) != 0 {
		t.Fatal("characteristic must be contained in the observation, not the reverse")
	}
}

func TestRoseScenario(t *testing.T) {
	policy := &firstEntryPolicy{}
	m := New(roseCatalog(t), Config{Policy: policy})

	res := m.Match(catalog.NewObservationSet("red petals", "green stem"))
	if res.IsFallback {
		t.Fatalf("unexpected fallback: %+v", res)
	}
	if res.Entry.ID != "rose" {
		t.Fatalf("expected rose, got %s", res.Entry.ID)
	}
	if math.Abs(res.Score-0.6133) > 1e-3 {
		t.Fatalf("expected score ~0.6133, got %v", res.Score)
	}
	if policy.calls != 0 {
		t.Fatalf("policy must not be consulted, got %d calls", policy.calls)
	}
}

func TestRoseScenarioEmptyFallsBack(t *testing.T) {
	policy := &firstEntryPolicy{}
	m := New(roseCatalog(t), Config{Policy: policy})

	res := m.Match(catalog.ObservationSet{})
	if !res.IsFallback || res.Entry.ID != "rose" {
		t.Fatalf("expected fallback to rose, got %+v", res)
	}
	if policy.calls != 1 {
		t.Fatalf("expected one policy call, got %d", policy.calls)
	}
}

func TestThresholdIsConfigurable(t *testing.T) {
	c := roseCatalog(t)
	obs := catalog.NewObservationSet("petals")

	if res := New(c, Config{Policy: &firstEntryPolicy{}}).Match(obs); res.IsFallback {
		t.Fatalf("score 0.3067 is just above default threshold, expected match: %+v", res)
	}
	high := 0.5
	if res := New(c, Config{Threshold: &high, Policy: &firstEntryPolicy{}}).Match(obs); !res.IsFallback {
		t.Fatalf("expected fallback under threshold 0.5, got %+v", res)
	}

	zero := 0.0
	m := New(c, Config{Threshold: &zero, Policy: &firstEntryPolicy{}})
	if m.Threshold() != 0 {
		t.Fatalf("explicit zero threshold replaced by %v", m.Threshold())
	}
	if res := m.Match(catalog.NewObservationSet("granite")); res.IsFallback || res.Score != 0 {
		t.Fatalf("zero threshold must never fall back, got %+v", res)
	}
}

func TestMatchIsDeterministicAboveThreshold(t *testing.T) {
	m := New(catalog.Builtin(), Config{Policy: &RandomPolicy{Rand: random.NewLockedRand(3)}})
	obs := catalog.NewObservationSet("metallic", "cylindrical", "reflective")

	first := m.Match(obs)
	for i := 0; i < 10; i++ {
		if res := m.Match(obs); res.Entry.ID != first.Entry.ID || res.IsFallback {
			t.Fatalf("expected %s, got %+v", first.Entry.ID, res)
		}
	}
	if first.Entry.ID != "metal-can" {
		t.Fatalf("expected metal-can, got %s", first.Entry.ID)
	}
}
