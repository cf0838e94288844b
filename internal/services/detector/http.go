package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/phambaophuc/vehicle-damage/internal/models"
	"go.uber.org/zap"
)

const (
	predictPath       = "/predict"
	healthPath        = "/health"
	uploadJPEGQuality = 95
	maxResponseBytes  = 4 << 20
)

// HTTPDetector calls an inference sidecar that hosts the segmentation model.
type HTTPDetector struct {
	baseURL    string
	httpClient *http.Client
	classNames []string
	logger     *zap.Logger
}

type predictResponse struct {
	Detections []struct {
		ClassID    int                `json:"class_id"`
		Class      string             `json:"class"`
		Confidence float64            `json:"confidence"`
		Box        models.BoundingBox `json:"box"`
	} `json:"detections"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPDetector creates a client for the sidecar at baseURL. Timeouts come from the
// request context, so the client itself has none.
func NewHTTPDetector(baseURL string, classNames []string, logger *zap.Logger) *HTTPDetector {
	return &HTTPDetector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		classNames: classNames,
		logger:     logger,
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: uploadJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+predictPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: send request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, truncate(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(respBody))
	}

	var parsed predictResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	detections := make([]models.Detection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		detections = append(detections, models.Detection{
			ClassID:    det.ClassID,
			Class:      resolveClass(det.ClassID, det.Class, d.classNames),
			Confidence: det.Confidence,
			Box:        det.Box.Rect(),
		})
	}
	return detections, nil
}

// Warmup succeeds once the sidecar reports its model as loaded.
func (d *HTTPDetector) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUpstream, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&health); err != nil {
		return fmt.Errorf("%w: decode health: %v", ErrUpstream, err)
	}
	if !health.ModelLoaded {
		return ErrNotReady
	}

	d.logger.Info("Detection service reachable", zap.String("url", d.baseURL))
	return nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
