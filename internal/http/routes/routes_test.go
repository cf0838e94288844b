package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/vehicle-damage/internal/config"
	"github.com/phambaophuc/vehicle-damage/internal/http/handlers"
	"github.com/phambaophuc/vehicle-damage/internal/models"
	"github.com/phambaophuc/vehicle-damage/internal/services/analyzer"
	"github.com/phambaophuc/vehicle-damage/internal/services/dedup"
	"github.com/phambaophuc/vehicle-damage/internal/services/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedBackend struct {
	detections []models.Detection
}

func (fixedBackend) Ready() bool { return true }

func (b fixedBackend) Detect(context.Context, image.Image) ([]models.Detection, error) {
	return b.detections, nil
}

func photo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 3), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := dedup.NewMemoryStore(dedup.Options{TTL: time.Hour, Capacity: 10})
	require.NoError(t, err)

	backend := fixedBackend{detections: []models.Detection{
		{ClassID: 0, Class: "dent", Confidence: 0.8123456789, Box: image.Rect(10, 10, 60, 50)},
	}}
	a := analyzer.New(backend, store, render.NewRenderer(render.Options{}), nil, zap.NewNop())
	h := handlers.NewAnalysisHandler(a, backend, store, nil, 10<<20, zap.NewNop())
	return NewRouter(h, config.StorageConfig{
		MaxFileSize:  10 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png"},
	}, zap.NewNop()).SetupRoutes()
}

func do(t *testing.T, r *gin.Engine, path string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "car.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDuplicateRoundTrip(t *testing.T) {
	r := newEngine(t)
	data := photo(t)

	first := do(t, r, "/ml/analyze", data)
	require.Equal(t, http.StatusOK, first.Code)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &result))
	assert.True(t, result.IsCar)
	assert.True(t, result.IsDamaged)
	assert.Equal(t, 0.812346, result.DamageConfidence)
	assert.Equal(t, models.SeverityHigh, result.DamageSeverity.SeverityLabel)
	require.Len(t, result.DamageLocations, 1)
	assert.Equal(t, "dent", result.DamageLocations[0].Location)
	assert.NotEmpty(t, result.PlottedImage)
	assert.NotEmpty(t, first.Header().Get("X-Request-ID"))

	second := do(t, r, "/api/v1/analyze", data)
	require.Equal(t, http.StatusConflict, second.Code)
	assert.JSONEq(t, `{"detail":"Potential duplicate image detected."}`, second.Body.String())
}

func TestCorruptUploadIsRejected(t *testing.T) {
	r := newEngine(t)

	w := do(t, r, "/analyze", []byte("not an image"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	stats := httptest.NewRecorder()
	r.ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, stats.Code)
	assert.Contains(t, stats.Body.String(), `"fingerprints":0`)
}

func TestUnsupportedContentType(t *testing.T) {
	r := newEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestContentTypeOutsideAllowList(t *testing.T) {
	r := newEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("GIF89a")))
	req.Header.Set("Content-Type", "image/gif")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestHealthRoutes(t *testing.T) {
	r := newEngine(t)

	for _, path := range []string{"/health", "/api/v1/health", "/"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
