package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/plant-scan/internal/auth"
	"github.com/example/plant-scan/internal/catalog"
	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/usecase"
)

// MaxUploadSize is the largest accepted image, in bytes.
const MaxUploadSize = 10 << 20

// formOverhead leaves room for multipart boundaries and text fields.
const formOverhead = 1 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
}

// Service is the detection functionality exposed over HTTP.
type Service interface {
	Detect(ctx context.Context, userID string, req detection.Request) (*detection.Record, error)
	GetResult(ctx context.Context, userID, requestID string) (*detection.Record, error)
	ListHistory(ctx context.Context, userID string, limit, offset int) ([]*detection.Record, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service, cat *catalog.Catalog, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/api/catalog", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": cat.Version(),
			"entries": cat.AllEntries(),
		})
	})

	api := router.Group("/api", authMiddleware)

	api.POST("/detect-plant", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+formOverhead)
		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				fail(c, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
				return
			}
			fail(c, http.StatusBadRequest, "image file is required")
			return
		}
		if file.Size > MaxUploadSize {
			fail(c, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
			return
		}

		src, err := file.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "unable to open image")
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to read image")
			return
		}
		if !isAllowedImageType(file.Header.Get("Content-Type"), data) {
			fail(c, http.StatusUnsupportedMediaType, "unsupported image type")
			return
		}

		location, err := parseLocation(c)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		capturedAt, err := parseCapturedAt(c)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := svc.Detect(c.Request.Context(), userID, detection.Request{
			Image:      data,
			Location:   location,
			CapturedAt: capturedAt,
		})
		if err != nil {
			if errors.Is(err, detection.ErrUndecodable) {
				fail(c, http.StatusUnprocessableEntity, "image cannot be decoded")
				return
			}
			fail(c, http.StatusInternalServerError, "detection failed")
			return
		}

		c.JSON(http.StatusOK, rec)
	})

	api.GET("/history", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))

		records, err := svc.ListHistory(c.Request.Context(), userID, limit, offset)
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to load history")
			return
		}
		c.JSON(http.StatusOK, gin.H{"detections": records})
	})

	api.GET("/result/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		rec, err := svc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			failLookup(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	api.GET("/result/:id/duplicates", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		report, err := svc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			failLookup(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	api.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to aggregate metrics")
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func failLookup(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, "result not found")
		return
	}
	fail(c, http.StatusInternalServerError, "failed to load result")
}

func isAllowedImageType(declared string, data []byte) bool {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	_, ok := allowedImageTypes[strings.ToLower(mediaType)]
	return ok
}

// parseLocation reads optional coordinates. Both must be present to form a
// location; a lone coordinate is ignored.
func parseLocation(c *gin.Context) (*detection.Location, error) {
	latRaw := strings.TrimSpace(c.PostForm("latitude"))
	lonRaw := strings.TrimSpace(c.PostForm("longitude"))
	if latRaw == "" || lonRaw == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, errors.New("invalid latitude")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, errors.New("invalid longitude")
	}
	return &detection.Location{
		Latitude:  lat,
		Longitude: lon,
		Address:   strings.TrimSpace(c.PostForm("address")),
	}, nil
}

// parseCapturedAt reads the optional client capture time. Absent means the
// detector stamps the record itself.
func parseCapturedAt(c *gin.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.PostForm("captured_at"))
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid captured_at")
	}
	return ts.UTC(), nil
}
