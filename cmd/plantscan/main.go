// Command plantscan acquires an image the way the scanner screen does and
// prints the resulting detection record as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/acquisition"
	"github.com/example/plant-scan/internal/auth"
	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/config"
	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/extractor"
	"github.com/example/plant-scan/internal/grpcdetect"
	"github.com/example/plant-scan/internal/logging"
	"github.com/example/plant-scan/internal/matcher"
	"github.com/example/plant-scan/internal/remote"
)

type options struct {
	mode    string
	file    string
	example string
	frames  string
	backend string
	token   string
	user    string
	timeout time.Duration
}

func main() {
	opts := options{}
	flag.StringVar(&opts.mode, "mode", string(acquisition.ModeUpload), "acquisition mode: upload, example or camera")
	flag.StringVar(&opts.file, "file", "", "image file for upload mode")
	flag.StringVar(&opts.example, "example", "", "catalog entry id for example mode")
	flag.StringVar(&opts.frames, "frames", "", "frame directory for camera mode (default FRAMES_DIR)")
	flag.StringVar(&opts.backend, "backend", "local", "detection backend: local, http or grpc")
	flag.StringVar(&opts.token, "token", "", "bearer token for remote backends (default: signed with JWT_SECRET)")
	flag.StringVar(&opts.user, "user", "cli", "subject of the generated token")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cat := catalog.Builtin()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogFile); err != nil {
			return err
		}
	}

	detector, closeDetector, err := buildDetector(ctx, opts, cfg, cat, logger)
	if err != nil {
		return err
	}
	defer closeDetector()

	frames := opts.frames
	if frames == "" {
		frames = cfg.FramesDir
	}
	session := acquisition.NewSession(acquisition.Config{
		Detector: detector,
		Device:   acquisition.FrameDirDevice{Dir: frames},
		Examples: acquisition.DirExamples{Dir: cfg.ExamplesDir, Catalog: cat},
		Locator:  acquisition.StaticLocator{Location: cfg.Location},
		Logger:   logger,
	})
	defer session.Close()

	rec, err := acquire(ctx, session, opts)
	if err != nil {
		if msg := session.Snapshot().Error; msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func acquire(ctx context.Context, s *acquisition.Session, opts options) (*detection.Record, error) {
	mode := acquisition.Mode(opts.mode)
	if err := s.SwitchMode(mode); err != nil {
		return nil, err
	}

	switch mode {
	case acquisition.ModeUpload:
		if opts.file == "" {
			return nil, errors.New("-file is required in upload mode")
		}
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, err
		}
		return s.Upload(ctx, data)
	case acquisition.ModeExample:
		if opts.example == "" {
			return nil, errors.New("-example is required in example mode")
		}
		return s.ScanExample(ctx, opts.example)
	case acquisition.ModeCamera:
		if err := s.StartCamera(ctx); err != nil {
			return nil, err
		}
		defer s.StopCamera()
		return s.Capture(ctx)
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
}

func buildDetector(ctx context.Context, opts options, cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) (detection.Detector, func(), error) {
	switch opts.backend {
	case "local":
		ex := extractor.NewRandomExtractor(cat, extractor.Config{MinTags: cfg.MinTags, MaxTags: cfg.MaxTags})
		m := matcher.New(cat, matcher.Config{Threshold: &cfg.FallbackThreshold})
		return detection.NewLocalDetector(ex, m, logger), func() {}, nil
	case "http", "grpc":
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", opts.backend)
	}

	token := opts.token
	if token == "" {
		signed, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTAudience, opts.user, time.Hour)
		if err != nil {
			return nil, nil, err
		}
		token = signed
	}
	creds := remote.StaticToken(token)

	if opts.backend == "http" {
		client := &http.Client{Timeout: opts.timeout}
		return remote.NewHTTPDetector(cfg.DetectionURL, client, creds, logger), func() {}, nil
	}

	client, conn, err := grpcdetect.Dial(ctx, cfg.GRPCTarget, creds, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { conn.Close() }, nil
}
