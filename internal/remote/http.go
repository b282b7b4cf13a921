package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/logging"
)

// DetectPath is the detection endpoint path on the service.
const DetectPath = "/api/detect-plant"

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// CredentialProvider supplies the bearer credential for a request.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer credential.
type StaticToken string

// Token implements CredentialProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Error is a non-2xx response from the detection endpoint.
type Error struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detection endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("detection endpoint returned status %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the server-provided message, if any.
func (e *Error) UserMessage() string {
	return e.Message
}

// HTTPDetector submits images to a remote detection endpoint as multipart
// form data and decodes the JSON detection record.
type HTTPDetector struct {
	baseURL     string
	client      *http.Client
	credentials CredentialProvider
	logger      *zap.Logger
}

// NewHTTPDetector constructs a detector for the service at baseURL. A nil
// client uses a 30 second timeout.
func NewHTTPDetector(baseURL string, client *http.Client, credentials CredentialProvider, logger *zap.Logger) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDetector{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		credentials: credentials,
		logger:      logger.Named("http_detector"),
	}
}

// Detect implements detection.Detector.
func (d *HTTPDetector) Detect(ctx context.Context, req detection.Request) (*detection.Record, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, logging.NewOperationError("remote.encode_form", "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+DetectPath, body)
	if err != nil {
		return nil, logging.NewOperationError("remote.new_request", "", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if d.credentials != nil {
		token, err := d.credentials.Token(ctx)
		if err != nil {
			return nil, logging.NewOperationError("remote.credentials", "", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError("remote.detect", "", err)
		d.logger.Error("detection request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, logging.NewOperationError("remote.read_response", "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &failure)
		remoteErr := &Error{StatusCode: resp.StatusCode, Message: failure.Message}
		d.logger.Warn("detection endpoint rejected request", zap.Int("status", resp.StatusCode), zap.String("message", failure.Message))
		return nil, remoteErr
	}

	var rec detection.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, logging.NewOperationError("remote.decode_response", "", err)
	}
	return &rec, nil
}

func encodeForm(req detection.Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="capture"`)
	header.Set("Content-Type", http.DetectContentType(req.Image))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}
	if req.Location != nil {
		fields := map[string]string{
			"latitude":  strconv.FormatFloat(req.Location.Latitude, 'f', -1, 64),
			"longitude": strconv.FormatFloat(req.Location.Longitude, 'f', -1, 64),
		}
		if req.Location.Address != "" {
			fields["address"] = req.Location.Address
		}
		for name, value := range fields {
			if err := writer.WriteField(name, value); err != nil {
				return nil, "", err
			}
		}
	}
	if !req.CapturedAt.IsZero() {
		if err := writer.WriteField("captured_at", req.CapturedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
