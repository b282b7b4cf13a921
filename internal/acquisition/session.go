package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/logging"
)

// Mode is the active input source.
type Mode string

const (
	ModeCamera  Mode = "camera"
	ModeUpload  Mode = "upload"
	ModeExample Mode = "example"
)

// CameraState is the camera sub-state. It is only meaningful in ModeCamera.
type CameraState string

const (
	CameraIdle      CameraState = "idle"
	CameraStreaming CameraState = "streaming"
	CameraCaptured  CameraState = "captured"
)

// Locator resolves the current position. It may be slow or fail.
type Locator interface {
	Locate(ctx context.Context) (*detection.Location, error)
}

// State is a snapshot of the session for rendering.
type State struct {
	Mode       Mode
	Camera     CameraState
	Loading    bool
	Result     *detection.Record
	Error      string
	Location   *detection.Location
	Generation uint64
}

// Config wires a session to its collaborators. Detector is required.
type Config struct {
	Detector detection.Detector
	Device   Device
	Examples ExampleSource
	Locator  Locator
	Raster   *Raster
	Logger   *zap.Logger
}

// Session is the acquisition state machine for one user. It owns the camera
// stream and allows a single submission in flight.
type Session struct {
	id       string
	detector detection.Detector
	device   Device
	examples ExampleSource
	raster   *Raster
	logger   *zap.Logger

	mu         sync.Mutex
	mode       Mode
	camera     CameraState
	stream     Stream
	generation uint64
	inFlight   bool
	cancelSub  context.CancelFunc
	result     *detection.Record
	errMsg     string
	location   *detection.Location
	closed     bool

	stopLocate context.CancelFunc
	locateDone chan struct{}
}

// NewSession starts a session in camera mode with the camera idle. When a
// locator is configured, location lookup starts in the background.
func NewSession(cfg Config) *Session {
	if cfg.Raster == nil {
		cfg.Raster = NewRaster()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Session{
		id:         uuid.NewString(),
		detector:   cfg.Detector,
		device:     cfg.Device,
		examples:   cfg.Examples,
		raster:     cfg.Raster,
		mode:       ModeCamera,
		camera:     CameraIdle,
		locateDone: make(chan struct{}),
	}
	s.logger = cfg.Logger.Named("acquisition").With(zap.String("session_id", s.id))

	if cfg.Locator == nil {
		close(s.locateDone)
		s.stopLocate = func() {}
		return s
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopLocate = cancel
	go s.locate(ctx, cfg.Locator)
	return s
}

func (s *Session) locate(ctx context.Context, l Locator) {
	defer close(s.locateDone)
	loc, err := l.Locate(ctx)
	if err != nil {
		s.logger.Info("location unavailable", zap.Error(err))
		return
	}
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Mode:       s.mode,
		Loading:    s.inFlight,
		Result:     s.result,
		Error:      s.errMsg,
		Location:   s.location,
		Generation: s.generation,
	}
	if s.mode == ModeCamera {
		st.Camera = s.camera
	}
	return st
}

// SwitchMode changes the input source. It releases the camera stream,
// abandons any pending submission and clears the result and error.
func (s *Session) SwitchMode(m Mode) error {
	switch m {
	case ModeCamera, ModeUpload, ModeExample:
	default:
		return fmt.Errorf("unknown mode %q", m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.resetLocked()
	s.mode = m
	s.camera = CameraIdle
	s.result = nil
	s.errMsg = ""
	s.logger.Debug("mode switched", zap.String("mode", string(m)), zap.Uint64("generation", s.generation))
	return nil
}

// resetLocked releases the stream, cancels the pending submission and bumps
// the generation so late results are discarded.
func (s *Session) resetLocked() {
	s.generation++
	stopTracks(s.stream)
	s.stream = nil
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	s.inFlight = false
}

// StartCamera acquires the device stream. It is a no-op while streaming.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.mode != ModeCamera {
		s.mu.Unlock()
		return ErrWrongMode
	}
	if s.stream != nil {
		s.mu.Unlock()
		return nil
	}
	if s.device == nil {
		s.errMsg = msgDeviceUnavailable
		s.mu.Unlock()
		return fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}
	gen := s.generation
	s.result = nil
	s.mu.Unlock()

	stream, err := s.device.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		stopTracks(stream)
		if gen == s.generation {
			s.errMsg = msgDeviceUnavailable
		}
		s.logger.Warn("camera unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if s.closed || gen != s.generation || s.stream != nil {
		stopTracks(stream)
		return ErrSuperseded
	}
	s.stream = stream
	s.camera = CameraStreaming
	s.errMsg = ""
	return nil
}

// StopCamera releases the stream and returns the camera to idle.
func (s *Session) StopCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeCamera || s.stream == nil {
		return
	}
	s.resetLocked()
	s.camera = CameraIdle
	s.result = nil
}

// Capture grabs the current frame, encodes it and submits it.
func (s *Session) Capture(ctx context.Context) (*detection.Record, error) {
	return s.submit(ctx, "capture", ModeCamera, func(ctx context.Context, stream Stream) ([]byte, error) {
		frame, err := stream.Frame(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		blob, err := s.raster.Encode(frame)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.stream == stream {
			s.camera = CameraCaptured
		}
		s.mu.Unlock()
		return blob, nil
	})
}

// Upload submits a selected file as is after checking that it decodes.
func (s *Session) Upload(ctx context.Context, data []byte) (*detection.Record, error) {
	return s.submit(ctx, "upload", ModeUpload, func(context.Context, Stream) ([]byte, error) {
		if _, err := detection.ValidateImage(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		return data, nil
	})
}

// ScanExample fetches an example asset and submits it through the raster,
// exactly like a camera frame.
func (s *Session) ScanExample(ctx context.Context, id string) (*detection.Record, error) {
	if s.examples == nil {
		return nil, fmt.Errorf("%w: no example source configured", ErrDecodeFailure)
	}
	return s.submit(ctx, "example", ModeExample, func(ctx context.Context, _ Stream) ([]byte, error) {
		data, err := s.examples.Fetch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: example %q: %v", ErrDecodeFailure, id, err)
		}
		return s.raster.EncodeBytes(data)
	})
}

// Submit sends an already encoded image blob in whatever mode is active.
func (s *Session) Submit(ctx context.Context, blob []byte) (*detection.Record, error) {
	return s.submit(ctx, "submit", "", func(context.Context, Stream) ([]byte, error) {
		return blob, nil
	})
}

// ClearResult drops the rendered result.
func (s *Session) ClearResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
}

// Close releases the stream and stops background work. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.resetLocked()
	s.camera = CameraIdle
	s.mu.Unlock()

	s.stopLocate()
	<-s.locateDone
}

// submit reserves the single in-flight slot, produces the payload and calls
// the detector. The mode check, the stream and the generation are read under
// one lock, so an action started before a mode switch cannot publish into the
// new mode. An empty mode accepts any mode.
func (s *Session) submit(ctx context.Context, source string, mode Mode, produce func(context.Context, Stream) ([]byte, error)) (*detection.Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if mode != "" && s.mode != mode {
		s.mu.Unlock()
		return nil, ErrWrongMode
	}
	stream := s.stream
	if mode == ModeCamera && stream == nil {
		s.mu.Unlock()
		return nil, ErrNotStreaming
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.detector == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no detector configured", ErrSubmissionFailure)
	}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.inFlight = true
	s.cancelSub = cancel
	s.errMsg = ""
	gen := s.generation
	s.mu.Unlock()

	opLogger := logging.WithOperation(s.logger, "acquisition."+source, "")
	capturedAt := time.Now()

	blob, err := produce(subCtx, stream)
	if err != nil {
		msg := msgDecodeFailure
		if source == "example" {
			msg = msgExampleFailure
		}
		opLogger.Warn("payload preparation failed", zap.Error(err))
		return nil, s.finish(gen, nil, msg, err)
	}

	if err := subCtx.Err(); err != nil {
		return nil, s.finish(gen, nil, msgSubmission, err)
	}

	s.mu.Lock()
	loc := s.location
	s.mu.Unlock()

	rec, err := s.detector.Detect(subCtx, detection.Request{Image: blob, Location: loc, CapturedAt: capturedAt})
	if err != nil {
		opLogger.Warn("detection failed", zap.Error(err))
		if !errors.Is(err, ErrSubmissionFailure) {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailure, err)
		}
		return nil, s.finish(gen, nil, submissionMessage(err), err)
	}

	opLogger.Info("detection completed",
		zap.Bool("is_plant", rec.IsPlant),
		zap.String("plant_name", rec.PlantName),
		zap.Float64("confidence", rec.Confidence),
	)
	if err := s.finish(gen, rec, "", nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// finish publishes the outcome if the submission is still current. A
// superseded submission leaves the state alone and reports ErrSuperseded.
func (s *Session) finish(gen uint64, rec *detection.Record, msg string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		if err == nil {
			return ErrSuperseded
		}
		return errors.Join(ErrSuperseded, err)
	}
	s.inFlight = false
	s.cancelSub = nil
	if rec != nil {
		s.result = rec
		s.errMsg = ""
		return nil
	}
	s.errMsg = msg
	return err
}
