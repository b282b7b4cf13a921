package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/extractor"
	"github.com/example/plant-scan/internal/matcher"
)

type fixedPolicy struct{ id string }

func (p fixedPolicy) Choose(c *catalog.Catalog) catalog.Entry {
	e, _ := c.Get(p.id)
	return e
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestLocalDetectorPlantRecord(t *testing.T) {
	c := catalog.Builtin()
	d := NewLocalDetector(
		extractor.StaticExtractor{Observations: catalog.NewObservationSet("red petals", "green stem", "thorns")},
		matcher.New(c, matcher.Config{Policy: fixedPolicy{id: "rock"}}),
		zap.NewNop(),
	)
	captured := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	loc := &Location{Latitude: 52.1, Longitude: 4.3}

	rec, err := d.Detect(context.Background(), Request{Image: pngBytes(t), Location: loc, CapturedAt: captured})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.IsPlant || rec.PlantName != "Rose" || rec.EntryID != "rose" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Location != loc || !rec.Timestamp.Equal(captured) {
		t.Fatalf("location/timestamp not carried: %+v", rec)
	}
}

func TestLocalDetectorNonPlantHasNoName(t *testing.T) {
	c := catalog.Builtin()
	d := NewLocalDetector(
		extractor.StaticExtractor{},
		matcher.New(c, matcher.Config{Policy: fixedPolicy{id: "rock"}}),
		zap.NewNop(),
	)
	d.now = func() time.Time { return time.Unix(100, 0) }

	rec, err := d.Detect(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.IsPlant || rec.PlantName != "" || !rec.IsFallback {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Timestamp.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected default timestamp, got %v", rec.Timestamp)
	}
}

func TestDecodeImage(t *testing.T) {
	if _, format, err := DecodeImage(pngBytes(t)); err != nil || format != "png" {
		t.Fatalf("expected png, got %q err=%v", format, err)
	}
	if _, _, err := DecodeImage([]byte("not an image")); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
	if _, err := ValidateImage(nil); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable for empty payload, got %v", err)
	}
}
