// Package analyzer runs the damage analysis pipeline: decode, fingerprint, duplicate
// gate, detection, aggregation and response assembly.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/phambaophuc/vehicle-damage/internal/models"
	"github.com/phambaophuc/vehicle-damage/internal/services/dedup"
	"github.com/phambaophuc/vehicle-damage/internal/services/detector"
	"github.com/phambaophuc/vehicle-damage/internal/services/events"
	"github.com/phambaophuc/vehicle-damage/internal/services/fingerprint"
	"github.com/phambaophuc/vehicle-damage/internal/services/severity"
	"go.uber.org/zap"
)

// Backend is the detection boundary the analyzer depends on.
type Backend interface {
	Ready() bool
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// Renderer draws detections onto the image and returns it encoded for the response.
type Renderer interface {
	Render(img image.Image, detections []models.Detection) (string, error)
}

type Analyzer struct {
	backend   Backend
	store     dedup.Store
	renderer  Renderer
	publisher events.Publisher
	maxPixels int64
	logger    *zap.Logger
}

type Option func(*Analyzer)

// WithMaxPixels caps the pixel count of images accepted for decoding.
func WithMaxPixels(n int64) Option {
	return func(a *Analyzer) {
		a.maxPixels = n
	}
}

func New(
	backend Backend,
	store dedup.Store,
	renderer Renderer,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Analyzer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	a := &Analyzer{
		backend:   backend,
		store:     store,
		renderer:  renderer,
		publisher: publisher,
		maxPixels: fingerprint.DefaultMaxPixels,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs one submission through the pipeline. It returns either a complete
// result or an error wrapping one of the package's sentinel errors.
func (a *Analyzer) Analyze(ctx context.Context, payload models.ImagePayload) (*models.AnalysisResult, error) {
	if !a.backend.Ready() {
		return nil, ErrModelUnavailable
	}

	logger := a.logger.With(
		zap.String("filename", payload.Filename),
		zap.String("content_type", payload.ContentType),
		zap.Int("bytes", len(payload.Data)),
	)
	if id := RequestID(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}

	img, format, err := fingerprint.Decode(payload.Data, a.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	fp, err := fingerprint.Hash(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	logger = logger.With(zap.String("format", format), zap.Stringer("fingerprint", fp))

	admitted, err := a.store.InsertIfAbsent(ctx, fp.String())
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if !admitted {
		logger.Warn("Duplicate submission rejected")
		return nil, ErrDuplicate
	}

	start := time.Now()
	detections, err := a.backend.Detect(ctx, img)
	if err != nil {
		a.release(fp, logger)
		mapped := mapDetectError(err)
		logger.Error("Detection failed", zap.Error(err))
		a.publish(ctx, payload, fp, nil, mapped)
		return nil, mapped
	}
	logger.Info("Detection completed",
		zap.Int("detections", len(detections)),
		zap.Duration("latency", time.Since(start)),
	)

	result, err := a.assemble(img, detections)
	if err != nil {
		a.release(fp, logger)
		logger.Error("Rendering failed", zap.Error(err))
		a.publish(ctx, payload, fp, nil, err)
		return nil, err
	}

	a.publish(ctx, payload, fp, result, nil)
	return result, nil
}

// assemble aggregates detections and renders the plotted image. Confidences are
// rounded here and nowhere else.
func (a *Analyzer) assemble(img image.Image, detections []models.Detection) (*models.AnalysisResult, error) {
	summary := severity.Aggregate(detections)

	plotted, err := a.renderer.Render(img, detections)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	locations := make([]models.DamageLocation, 0, len(summary.Locations))
	for _, loc := range summary.Locations {
		locations = append(locations, models.DamageLocation{
			Location:   loc.Label,
			Confidence: severity.Round6(loc.Confidence),
		})
	}

	confidence := severity.Round6(summary.Confidence)
	return &models.AnalysisResult{
		IsCar:            true,
		IsDamaged:        summary.IsDamaged,
		DamageConfidence: confidence,
		DamageLocations:  locations,
		DamageSeverity: models.DamageSeverity{
			SeverityLabel:      summary.SeverityLabel,
			SeverityConfidence: confidence,
		},
		PlottedImage: plotted,
	}, nil
}

// release forgets a fingerprint whose analysis failed so the caller can resubmit.
func (a *Analyzer) release(fp fingerprint.Fingerprint, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Remove(ctx, fp.String()); err != nil {
		logger.Warn("Failed to release fingerprint", zap.Error(err))
	}
}

func (a *Analyzer) publish(ctx context.Context, payload models.ImagePayload, fp fingerprint.Fingerprint, result *models.AnalysisResult, failure error) {
	event := &models.AnalysisEvent{
		ID:          uuid.New().String(),
		RequestID:   RequestID(ctx),
		Fingerprint: fp.String(),
		Filename:    payload.Filename,
		Status:      models.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if failure != nil {
		event.Status = models.StatusFailed
		event.Error = failure.Error()
	} else {
		event.IsDamaged = result.IsDamaged
		event.DamageConfidence = result.DamageConfidence
		event.SeverityLabel = result.DamageSeverity.SeverityLabel
		event.LocationCount = len(result.DamageLocations)
	}

	if err := a.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		a.logger.Warn("Failed to publish analysis event", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func mapDetectError(err error) error {
	switch {
	case errors.Is(err, detector.ErrNotReady):
		return ErrModelUnavailable
	case errors.Is(err, detector.ErrTimeout):
		return ErrInferenceTimeout
	case errors.Is(err, detector.ErrUpstream):
		return fmt.Errorf("%w: %w: %v", ErrInference, ErrBackendFault, err)
	default:
		return fmt.Errorf("%w: %v", ErrInference, err)
	}
}
