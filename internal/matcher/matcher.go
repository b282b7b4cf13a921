package matcher

import (
	"strings"

	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/random"
)

// DefaultThreshold is the score below which the best match is discarded in
// favour of the uncertainty policy.
const DefaultThreshold = 0.3

// Result is the outcome of matching one observation set.
type Result struct {
	Entry      catalog.Entry
	Score      float64
	IsFallback bool
}

// UncertaintyPolicy picks an entry when no entry scores above the threshold.
type UncertaintyPolicy interface {
	Choose(c *catalog.Catalog) catalog.Entry
}

// RandomPolicy samples uniformly from the whole catalog.
type RandomPolicy struct {
	Rand random.Rand
}

// NewRandomPolicy returns a policy backed by a time-seeded source.
func NewRandomPolicy() *RandomPolicy {
	return &RandomPolicy{Rand: random.NewTimeSeeded()}
}

// Choose implements UncertaintyPolicy.
func (p *RandomPolicy) Choose(c *catalog.Catalog) catalog.Entry {
	return c.At(p.Rand.Intn(c.Len()))
}

// Config holds matcher settings.
type Config struct {
	// Threshold is the confidence floor. If nil, DefaultThreshold is used;
	// an explicit 0 disables the fallback.
	Threshold *float64
	// Policy handles low-confidence matches. If nil, RandomPolicy is used.
	Policy UncertaintyPolicy
}

func (c *Config) applyDefaults() {
	if c.Threshold == nil {
		t := DefaultThreshold
		c.Threshold = &t
	}
	if c.Policy == nil {
		c.Policy = NewRandomPolicy()
	}
}

// Matcher resolves observations to the best catalog entry.
type Matcher struct {
	catalog   *catalog.Catalog
	threshold float64
	policy    UncertaintyPolicy
}

// New constructs a Matcher over an immutable catalog.
func New(c *catalog.Catalog, cfg Config) *Matcher {
	cfg.applyDefaults()
	return &Matcher{catalog: c, threshold: *cfg.Threshold, policy: cfg.Policy}
}

// Threshold returns the configured confidence floor.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scores every entry and returns the best one. Ties go to the entry
// declared first. It never fails, including for an empty observation set.
func (m *Matcher) Match(observations catalog.ObservationSet) Result {
	folded := make([]string, len(observations))
	for i, o := range observations {
		folded[i] = catalog.NormalizeTag(o)
	}

	bestIdx := 0
	bestScore := -1.0
	for i := 0; i < m.catalog.Len(); i++ {
		score := score(m.catalog.At(i), folded)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}

	if bestScore < m.threshold {
		entry := m.policy.Choose(m.catalog)
		return Result{Entry: entry, Score: Score(entry, observations), IsFallback: true}
	}
	return Result{Entry: m.catalog.At(bestIdx), Score: bestScore}
}

// Score is the weighted coverage fraction of entry given the observations:
// matched characteristics over all characteristics, times base confidence.
func Score(entry catalog.Entry, observations catalog.ObservationSet) float64 {
	folded := make([]string, len(observations))
	for i, o := range observations {
		folded[i] = catalog.NormalizeTag(o)
	}
	return score(entry, folded)
}

func score(entry catalog.Entry, folded []string) float64 {
	if len(entry.Characteristics) == 0 {
		return 0
	}
	matched := 0
	for _, c := range entry.Characteristics {
		for _, o := range folded {
			if strings.Contains(o, c) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(entry.Characteristics)) * entry.BaseConfidence
}
