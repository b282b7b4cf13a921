package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/logging"
	"github.com/example/plant-scan/internal/repository"
)

const (
	// DefaultHistoryLimit is the page size used when none is requested.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps the page size of history listings.
	MaxHistoryLimit = 200

	processingTTL = time.Minute
	resultTTL     = 5 * time.Minute
)

// DetectionRepository defines the persistence operations needed by the use case.
type DetectionRepository interface {
	SaveLog(ctx context.Context, log *repository.DetectionLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.DetectionLog, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*repository.DetectionLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.DetectionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DetectionUseCase runs detections and keeps the per-user history.
type DetectionUseCase struct {
	repo           DetectionRepository
	cache          Cache
	detector       detection.Detector
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedDetection struct {
	UserID string           `json:"user_id"`
	Hash   string           `json:"sha1_hash"`
	Record detection.Record `json:"record"`
}

// DuplicateReport lists earlier detections of the same image by the same user.
type DuplicateReport struct {
	Request    *detection.Record   `json:"request"`
	Duplicates []*detection.Record `json:"duplicates"`
}

// MetricsSummary represents aggregated detection insights.
type MetricsSummary struct {
	TotalDetections   int64   `json:"total_detections"`
	PlantDetections   int64   `json:"plant_detections"`
	PlantRate         float64 `json:"plant_rate"`
	FallbackCount     int64   `json:"fallback_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// NewDetectionUseCase constructs a new use case instance.
func NewDetectionUseCase(repo DetectionRepository, cache Cache, detector detection.Detector, logger *zap.Logger) *DetectionUseCase {
	return &DetectionUseCase{
		repo:           repo,
		cache:          cache,
		detector:       detector,
		logger:         logger.Named("detection_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Detect validates the image, runs the detector, stores the record in the
// user's history and caches it.
func (uc *DetectionUseCase) Detect(ctx context.Context, userID string, req detection.Request) (*detection.Record, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.detect", requestID)

	if _, err := detection.ValidateImage(req.Image); err != nil {
		opLogger.Info("rejected undecodable image", zap.Error(err))
		return nil, err
	}

	cacheKey := resultCacheKey(requestID)
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	rec, err := uc.detector.Detect(ctx, req)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.run_detector", requestID, err)
		opLogger.Error("detection failed", zap.Error(wrapped))
		return nil, wrapped
	}
	rec.ID = requestID

	hash := sha1.Sum(req.Image)
	hashHex := hex.EncodeToString(hash[:])
	log := logFromRecord(rec, userID, hashHex)
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist detection", zap.Error(wrapped))
		return nil, wrapped
	}

	// Best-effort: GetResult falls back to the history row.
	serialized, err := json.Marshal(cachedDetection{UserID: userID, Hash: hashHex, Record: *rec})
	if err != nil {
		opLogger.Warn("failed to serialize detection for cache", zap.Error(err))
	} else if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Warn("failed to cache detection", zap.Error(err))
	}

	opLogger.Info("detection stored",
		zap.String("user_id", userID),
		zap.Bool("is_plant", rec.IsPlant),
		zap.Float64("confidence", rec.Confidence),
		zap.Bool("fallback", rec.IsFallback),
	)
	return rec, nil
}

// GetResult returns a cached detection or loads it from history.
func (uc *DetectionUseCase) GetResult(ctx context.Context, userID, requestID string) (*detection.Record, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)
	cached, err := uc.withCacheGet(ctx, requestID, "cache.get.result", resultCacheKey(requestID))
	switch {
	case err == nil:
		var payload cachedDetection
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Debug("cache entry is not a result", zap.Error(err))
		} else if payload.UserID == userID {
			rec := payload.Record
			return &rec, nil
		}
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	return recordFromLog(log), nil
}

// ListHistory returns the user's detections, newest first.
func (uc *DetectionUseCase) ListHistory(ctx context.Context, userID string, limit, offset int) ([]*detection.Record, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := uc.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return recordsFromLogs(logs), nil
}

// GetDuplicateReport finds other detections of the same image by the user.
func (uc *DetectionUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    recordFromLog(log),
		Duplicates: recordsFromLogs(duplicates),
	}, nil
}

// GetMetricsSummary aggregates detection metrics from history.
func (uc *DetectionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalDetections:   aggregation.TotalCount,
		PlantDetections:   aggregation.PlantCount,
		FallbackCount:     aggregation.FallbackCount,
		AverageConfidence: aggregation.AverageConfidence,
	}
	if aggregation.TotalCount > 0 {
		summary.PlantRate = float64(aggregation.PlantCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

func resultCacheKey(requestID string) string {
	return fmt.Sprintf("detection:%s", requestID)
}

func logFromRecord(rec *detection.Record, userID, hash string) *repository.DetectionLog {
	log := &repository.DetectionLog{
		RequestID:  rec.ID,
		UserID:     userID,
		PlantName:  rec.PlantName,
		EntryID:    rec.EntryID,
		IsPlant:    rec.IsPlant,
		IsFallback: rec.IsFallback,
		Confidence: rec.Confidence,
		SHA1Hash:   hash,
		CapturedAt: rec.Timestamp,
		CreatedAt:  time.Now().UTC(),
	}
	if rec.Location != nil {
		lat, lon := rec.Location.Latitude, rec.Location.Longitude
		log.Latitude = &lat
		log.Longitude = &lon
		log.Address = rec.Location.Address
	}
	return log
}

func recordFromLog(log *repository.DetectionLog) *detection.Record {
	rec := &detection.Record{
		ID:         log.RequestID,
		IsPlant:    log.IsPlant,
		PlantName:  log.PlantName,
		Confidence: log.Confidence,
		Timestamp:  log.CapturedAt,
		EntryID:    log.EntryID,
		IsFallback: log.IsFallback,
	}
	if log.Latitude != nil && log.Longitude != nil {
		rec.Location = &detection.Location{
			Latitude:  *log.Latitude,
			Longitude: *log.Longitude,
			Address:   log.Address,
		}
	}
	return rec
}

func recordsFromLogs(logs []*repository.DetectionLog) []*detection.Record {
	out := make([]*detection.Record, 0, len(logs))
	for _, log := range logs {
		out = append(out, recordFromLog(log))
	}
	return out
}

func (uc *DetectionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("cache operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *DetectionUseCase) withCacheGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withCacheRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
