package acquisition

import (
	"context"
	"image"
)

// Track is one media track of an open device stream.
type Track interface {
	Stop()
}

// Stream is an exclusively held camera stream.
type Stream interface {
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)
	Tracks() []Track
}

// Device grants camera streams. Open may block while waiting for permission.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// ExampleSource fetches canned example images by id.
type ExampleSource interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

func stopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
