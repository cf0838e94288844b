package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/vehicle-damage/internal/models"
	"github.com/phambaophuc/vehicle-damage/pkg/utils"
)

// Multipart field names accepted for the uploaded photo, in lookup order.
var fileFields = []string{"file", "image"}

// requestError is a client-side failure that never reaches the analyzer.
type requestError struct {
	status int
	detail string
}

var (
	errNoFile   = &requestError{http.StatusBadRequest, "No image file provided"}
	errTooLarge = &requestError{http.StatusRequestEntityTooLarge, "Image exceeds the maximum upload size"}
)

// readPayload extracts the image from a multipart form or the raw request body.
func (h *AnalysisHandler) readPayload(c *gin.Context) (models.ImagePayload, *requestError) {
	if utils.MediaType(c.GetHeader("Content-Type")) == "multipart/form-data" {
		return h.readMultipart(c)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return models.ImagePayload{}, bodyError(err)
	}
	if len(data) == 0 {
		return models.ImagePayload{}, errNoFile
	}
	if int64(len(data)) > h.maxFileSize {
		return models.ImagePayload{}, errTooLarge
	}

	filename := c.GetHeader("X-Filename")
	if filename == "" {
		filename = "upload"
	}
	return models.ImagePayload{
		Data:        data,
		ContentType: utils.ResolveContentType(c.GetHeader("Content-Type"), data),
		Filename:    filepath.Base(filename),
	}, nil
}

func (h *AnalysisHandler) readMultipart(c *gin.Context) (models.ImagePayload, *requestError) {
	if err := c.Request.ParseMultipartForm(h.maxFileSize); err != nil {
		return models.ImagePayload{}, bodyError(err)
	}

	for _, field := range fileFields {
		file, header, err := c.Request.FormFile(field)
		if err != nil {
			continue
		}
		return h.readFormFile(file, header)
	}

	return models.ImagePayload{}, errNoFile
}

func (h *AnalysisHandler) readFormFile(file multipart.File, header *multipart.FileHeader) (models.ImagePayload, *requestError) {
	defer file.Close()

	if header.Size > h.maxFileSize {
		return models.ImagePayload{}, errTooLarge
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return models.ImagePayload{}, bodyError(err)
	}
	if len(data) == 0 {
		return models.ImagePayload{}, errNoFile
	}

	return models.ImagePayload{
		Data:        data,
		ContentType: utils.ResolveContentType(header.Header.Get("Content-Type"), data),
		Filename:    filepath.Base(header.Filename),
	}, nil
}

func bodyError(err error) *requestError {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errTooLarge
	}
	return &requestError{http.StatusBadRequest, "Failed to read request body: " + err.Error()}
}
