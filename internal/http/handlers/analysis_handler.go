package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/vehicle-damage/internal/http/middleware"
	"github.com/phambaophuc/vehicle-damage/internal/models"
	"github.com/phambaophuc/vehicle-damage/internal/services/analyzer"
	"go.uber.org/zap"
)

// Analyzer runs a submission through the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, payload models.ImagePayload) (*models.AnalysisResult, error)
}

// Readiness reports whether the detection model can serve requests.
type Readiness interface {
	Ready() bool
}

// ServiceCheck reports the status of a dependency: "healthy", "not configured" or
// an "unhealthy: ..." reason.
type ServiceCheck func(ctx context.Context) string

// Counter exposes the number of live duplicate-cache entries.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

type AnalysisHandler struct {
	analyzer    Analyzer
	readiness   Readiness
	cache       Counter
	checks      map[string]ServiceCheck
	maxFileSize int64
	logger      *zap.Logger
}

func NewAnalysisHandler(
	analyzer Analyzer,
	readiness Readiness,
	cache Counter,
	checks map[string]ServiceCheck,
	maxFileSize int64,
	logger *zap.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:    analyzer,
		readiness:   readiness,
		cache:       cache,
		checks:      checks,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Analyze handles a single vehicle photo submission
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	payload, reqErr := h.readPayload(c)
	if reqErr != nil {
		c.JSON(reqErr.status, models.ErrorResponse{Detail: reqErr.detail})
		return
	}

	ctx := analyzer.WithRequestID(c.Request.Context(), c.GetString(middleware.RequestIDKey))
	result, err := h.analyzer.Analyze(ctx, payload)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AnalysisHandler) writeError(c *gin.Context, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Analysis failed",
			zap.Int("status", status),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
	}
	c.JSON(status, models.ErrorResponse{Detail: detail})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analyzer.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "Model is not loaded."
	case errors.Is(err, analyzer.ErrDecode):
		return http.StatusBadRequest, "Invalid image or prediction error: " + err.Error()
	case errors.Is(err, analyzer.ErrDuplicate):
		return http.StatusConflict, "Potential duplicate image detected."
	case errors.Is(err, analyzer.ErrInferenceTimeout):
		return http.StatusGatewayTimeout, "Prediction timed out."
	case errors.Is(err, analyzer.ErrBackendFault):
		return http.StatusBadGateway, "Detection backend failed: " + err.Error()
	case errors.Is(err, analyzer.ErrInference):
		return http.StatusBadRequest, "Invalid image or prediction error: " + err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// HealthCheck reports model readiness and dependency status
func (h *AnalysisHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		services[name] = check(ctx)
	}

	modelLoaded := h.readiness.Ready()
	overall := "healthy"
	if !modelLoaded {
		overall = "unhealthy"
	}
	for _, status := range services {
		if status != "healthy" && status != "not configured" {
			overall = "unhealthy"
			break
		}
	}

	statusCode := http.StatusOK
	if overall == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.HealthCheck{
		Status:      overall,
		ModelLoaded: modelLoaded,
		Timestamp:   time.Now(),
		Services:    services,
	})
}

// GetStats returns duplicate-cache statistics
func (h *AnalysisHandler) GetStats(c *gin.Context) {
	entries, err := h.cache.Len(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get cache stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Failed to get cache stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fingerprints": entries,
		"model_loaded": h.readiness.Ready(),
		"timestamp":    time.Now(),
	})
}

// Root returns the welcome message
func (h *AnalysisHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the Vehicle Damage Detection API",
	})
}
