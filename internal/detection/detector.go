package detection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/extractor"
	"github.com/example/plant-scan/internal/matcher"
)

// Request is one normalised image payload with optional location.
type Request struct {
	Image      []byte
	Location   *Location
	CapturedAt time.Time
}

// Detector resolves an image to a detection record.
type Detector interface {
	Detect(ctx context.Context, req Request) (*Record, error)
}

// LocalDetector runs extraction then matching in process.
type LocalDetector struct {
	extractor extractor.Extractor
	matcher   *matcher.Matcher
	logger    *zap.Logger
	now       func() time.Time
}

// NewLocalDetector wires an extractor and matcher together.
func NewLocalDetector(ex extractor.Extractor, m *matcher.Matcher, logger *zap.Logger) *LocalDetector {
	return &LocalDetector{
		extractor: ex,
		matcher:   m,
		logger:    logger.Named("local_detector"),
		now:       time.Now,
	}
}

// Detect implements Detector. Extraction always completes before matching.
func (d *LocalDetector) Detect(ctx context.Context, req Request) (*Record, error) {
	observations, err := d.extractor.Extract(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	res := d.matcher.Match(observations)
	d.logger.Debug("matched observations",
		zap.Strings("observations", observations),
		zap.String("entry_id", res.Entry.ID),
		zap.Float64("score", res.Score),
		zap.Bool("fallback", res.IsFallback),
	)

	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = d.now()
	}
	return NewRecord(res, req.Location, capturedAt), nil
}
