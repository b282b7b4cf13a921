package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/extractor"
	"github.com/example/plant-scan/internal/matcher"
)

// Config holds the runtime settings shared by the server and the CLI.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	DatabaseDSN string
	// RedisAddr selects the result cache. Empty means an in-process cache.
	RedisAddr   string
	JWTSecret   string
	JWTAudience string
	LogLevel    string

	// CatalogFile overrides the built-in catalog when set.
	CatalogFile       string
	FallbackThreshold float64
	MinTags           int
	MaxTags           int

	DetectionURL string
	GRPCTarget   string
	ExamplesDir  string
	FramesDir    string

	Location *detection.Location
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":9090"),
		DatabaseDSN:  getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=plantscan port=5432 sslmode=disable"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:  os.Getenv("JWT_AUDIENCE"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		CatalogFile:  os.Getenv("CATALOG_FILE"),
		DetectionURL: getEnv("DETECTION_URL", "http://localhost:8080"),
		GRPCTarget:   getEnv("GRPC_TARGET", "localhost:9090"),
		ExamplesDir:  getEnv("EXAMPLES_DIR", "examples"),
		FramesDir:    getEnv("FRAMES_DIR", "frames"),
	}

	var err error
	if cfg.FallbackThreshold, err = getFloat("FALLBACK_THRESHOLD", matcher.DefaultThreshold); err != nil {
		return nil, err
	}
	if cfg.FallbackThreshold < 0 || cfg.FallbackThreshold > 1 {
		return nil, fmt.Errorf("FALLBACK_THRESHOLD must be within [0,1], got %v", cfg.FallbackThreshold)
	}
	if cfg.MinTags, err = getInt("EXTRACT_MIN_TAGS", extractor.DefaultMinTags); err != nil {
		return nil, err
	}
	if cfg.MaxTags, err = getInt("EXTRACT_MAX_TAGS", extractor.DefaultMaxTags); err != nil {
		return nil, err
	}
	if cfg.MinTags < 0 || cfg.MaxTags < 1 || cfg.MaxTags < cfg.MinTags {
		return nil, fmt.Errorf("invalid tag bounds: min=%d max=%d", cfg.MinTags, cfg.MaxTags)
	}

	if cfg.Location, err = loadLocation(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLocation() (*detection.Location, error) {
	latRaw := strings.TrimSpace(os.Getenv("LATITUDE"))
	lonRaw := strings.TrimSpace(os.Getenv("LONGITUDE"))
	if latRaw == "" || lonRaw == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid LATITUDE %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid LONGITUDE %q", lonRaw)
	}
	return &detection.Location{Latitude: lat, Longitude: lon, Address: os.Getenv("ADDRESS")}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
