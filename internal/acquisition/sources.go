package acquisition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/detection"
)

// DirExamples serves example assets named by catalog entries from a directory.
type DirExamples struct {
	Dir     string
	Catalog *catalog.Catalog
}

// Fetch implements ExampleSource.
func (d DirExamples) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := d.Catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown example %q", id)
	}
	if entry.Image == "" {
		return nil, fmt.Errorf("example %q has no image", id)
	}
	return os.ReadFile(filepath.Join(d.Dir, filepath.Clean("/"+entry.Image)))
}

// FrameDirDevice is a camera backed by a directory of still images. Each
// Frame call returns the next image in name order.
type FrameDirDevice struct {
	Dir string
}

// Open implements Device.
func (d FrameDirDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
			frames = append(frames, filepath.Join(d.Dir, e.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, errors.New("no frames in " + d.Dir)
	}
	sort.Strings(frames)
	return &fileStream{frames: frames, track: &videoTrack{}}, nil
}

type fileStream struct {
	mu     sync.Mutex
	frames []string
	next   int
	track  *videoTrack
}

func (s *fileStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.track.Stopped() {
		return nil, errors.New("stream stopped")
	}
	s.mu.Lock()
	path := s.frames[s.next%len(s.frames)]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := detection.DecodeImage(data)
	return img, err
}

func (s *fileStream) Tracks() []Track {
	return []Track{s.track}
}

type videoTrack struct {
	mu      sync.Mutex
	stopped bool
}

func (t *videoTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *videoTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// StaticLocator reports a fixed position, or nothing when unset.
type StaticLocator struct {
	Location *detection.Location
}

// ErrLocationUnavailable is returned when no position is known.
var ErrLocationUnavailable = errors.New("location unavailable")

// Locate implements Locator.
func (l StaticLocator) Locate(ctx context.Context) (*detection.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Location == nil {
		return nil, ErrLocationUnavailable
	}
	loc := *l.Location
	return &loc, nil
}
