package extractor

import (
	"context"

	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/random"
)

const (
	// DefaultMinTags is the smallest number of tags the random extractor draws.
	DefaultMinTags = 3
	// DefaultMaxTags is the largest number of tags the random extractor draws.
	DefaultMaxTags = 5
)

// Extractor turns an encoded image into observed characteristic tags.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (catalog.ObservationSet, error)
}

// Config holds the random extractor settings.
type Config struct {
	// MinTags and MaxTags bound the number of tags drawn per image. When
	// both are zero the defaults apply. A MaxTags below MinTags is raised
	// to MinTags, so MinTags alone fixes the count.
	MinTags int
	MaxTags int
	// Rand overrides the random source. If nil, a time-seeded source is used.
	Rand random.Rand
}

func (c *Config) applyDefaults() {
	if c.MinTags == 0 && c.MaxTags == 0 {
		c.MinTags, c.MaxTags = DefaultMinTags, DefaultMaxTags
	}
	if c.MinTags < 0 {
		c.MinTags = 0
	}
	if c.MaxTags < c.MinTags {
		c.MaxTags = c.MinTags
	}
	if c.Rand == nil {
		c.Rand = random.NewTimeSeeded()
	}
}

// RandomExtractor samples tags from the catalog vocabulary and ignores the
// image. It stands in for a real feature extractor.
type RandomExtractor struct {
	universe []string
	minTags  int
	maxTags  int
	rng      random.Rand
}

// NewRandomExtractor builds an extractor over the catalog's tag universe.
func NewRandomExtractor(c *catalog.Catalog, cfg Config) *RandomExtractor {
	cfg.applyDefaults()
	return &RandomExtractor{
		universe: c.Tags(),
		minTags:  cfg.MinTags,
		maxTags:  cfg.MaxTags,
		rng:      cfg.Rand,
	}
}

// Extract draws k in [minTags, maxTags], then draws tags uniformly, skipping
// ones already selected, until k distinct tags are held or the universe is
// exhausted.
func (e *RandomExtractor) Extract(ctx context.Context, _ []byte) (catalog.ObservationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := e.minTags + e.rng.Intn(e.maxTags-e.minTags+1)
	if k > len(e.universe) {
		k = len(e.universe)
	}

	selected := make(catalog.ObservationSet, 0, k)
	seen := make(map[int]struct{}, k)
	for len(selected) < k {
		i := e.rng.Intn(len(e.universe))
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		selected = append(selected, e.universe[i])
	}
	return selected, nil
}

// StaticExtractor always returns the same observations.
type StaticExtractor struct {
	Observations catalog.ObservationSet
}

// Extract implements Extractor.
func (s StaticExtractor) Extract(ctx context.Context, _ []byte) (catalog.ObservationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append(catalog.ObservationSet(nil), s.Observations...), nil
}
