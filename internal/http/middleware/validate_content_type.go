package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/vehicle-damage/internal/models"
	"github.com/phambaophuc/vehicle-damage/pkg/utils"
)

// ValidateContentType rejects uploads that are neither multipart forms, one of the
// allowed image types nor opaque binary.
func ValidateContentType(allowedTypes []string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		mediaType := utils.MediaType(ctx.GetHeader("Content-Type"))

		switch {
		case mediaType == "",
			mediaType == "multipart/form-data",
			mediaType == "application/octet-stream",
			utils.IsValidImageType(mediaType, allowedTypes...):
			ctx.Next()
		default:
			ctx.AbortWithStatusJSON(http.StatusUnsupportedMediaType, models.ErrorResponse{
				Detail: "Unsupported content type: " + mediaType,
			})
		}
	}
}

// LimitBody caps the request body at maxBytes.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBytes)
		ctx.Next()
	}
}
