package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/phambaophuc/vehicle-damage/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	Timeout        time.Duration
	MaxConcurrency int
}

var DefaultOptions = Options{
	Timeout:        30 * time.Second,
	MaxConcurrency: 4,
}

// Backend is the only way the analysis pipeline reaches a Detector.
type Backend struct {
	detector Detector
	sem      *semaphore.Weighted
	timeout  time.Duration
	ready    atomic.Bool
	logger   *zap.Logger
}

func NewBackend(d Detector, logger *zap.Logger, opts ...Options) *Backend {
	options := DefaultOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxConcurrency < 1 {
		options.MaxConcurrency = 1
	}

	return &Backend{
		detector: d,
		sem:      semaphore.NewWeighted(int64(options.MaxConcurrency)),
		timeout:  options.Timeout,
		logger:   logger,
	}
}

// Warmup loads or probes the model and marks the backend ready on success.
func (b *Backend) Warmup(ctx context.Context) error {
	if w, ok := b.detector.(Warmer); ok {
		if err := w.Warmup(ctx); err != nil {
			b.ready.Store(false)
			return fmt.Errorf("warmup: %w", err)
		}
	}
	b.MarkReady()
	return nil
}

func (b *Backend) MarkReady() {
	if !b.ready.Swap(true) {
		b.logger.Info("Detection model ready")
	}
}

func (b *Backend) Ready() bool {
	return b.ready.Load()
}

// Detect runs the detector under the concurrency limit and deadline. A slot stays
// taken until the detector actually returns, even after the caller gave up.
func (b *Backend) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if !b.Ready() {
		return nil, ErrNotReady
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, b.contextError(ctx, err)
	}

	type result struct {
		detections []models.Detection
		err        error
	}
	done := make(chan result, 1)

	start := time.Now()
	go func() {
		defer b.sem.Release(1)
		detections, err := b.detector.Detect(ctx, img)
		done <- result{detections, err}
	}()

	select {
	case <-ctx.Done():
		b.logger.Warn("Detection abandoned", zap.Duration("elapsed", time.Since(start)), zap.Error(ctx.Err()))
		return nil, b.contextError(ctx, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: %w", ErrBackend, r.err)
		}
		if err := validate(r.detections); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackend, err)
		}
		b.logger.Debug("Detection finished",
			zap.Int("detections", len(r.detections)),
			zap.Duration("latency", time.Since(start)),
		)
		return r.detections, nil
	}
}

func (b *Backend) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

func validate(detections []models.Detection) error {
	for i, d := range detections {
		if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("%w: detection %d has confidence %v", ErrUpstream, i, d.Confidence)
		}
	}
	return nil
}

// WaitReady retries Warmup every interval until it succeeds or ctx ends.
func (b *Backend) WaitReady(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := b.Warmup(ctx)
		if err == nil {
			return
		}
		b.logger.Warn("Detection model not ready yet", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
