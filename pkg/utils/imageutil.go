package utils

import (
	"mime"
	"net/http"
	"strings"
)

// DefaultImageTypes are the media types every registered decoder can handle.
var DefaultImageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// IsValidImageType checks if content type is one of allowed, or of
// DefaultImageTypes when allowed is empty.
func IsValidImageType(contentType string, allowed ...string) bool {
	if len(allowed) == 0 {
		allowed = DefaultImageTypes
	}

	ct := strings.ToLower(contentType)
	for _, validType := range allowed {
		if validType != "" && strings.Contains(ct, strings.ToLower(validType)) {
			return true
		}
	}
	return false
}

// MediaType returns the lower-cased media type of a Content-Type header without
// parameters, or "" if it is empty or malformed.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// ResolveContentType prefers the declared image type and falls back to sniffing.
func ResolveContentType(declared string, data []byte) string {
	if mt := MediaType(declared); IsValidImageType(mt) {
		return mt
	}
	return http.DetectContentType(data)
}
