package documents

import (
	"fmt"
	"strings"
)

// MaxUploadBytes is the hard ceiling for a single uploaded file.
const MaxUploadBytes = 25 << 20

var allowedMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"image/webp":         {},
	"image/tiff":         {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/csv":   {},
	"text/plain": {},
}

// Validate enforces size, type, and name constraints before anything is
// persisted. It is a pure check with no side effects.
func Validate(fileName string, sizeBytes int64, mimeType string) error {
	if strings.TrimSpace(fileName) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if sizeBytes > MaxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, MaxUploadBytes)
	}
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if _, ok := allowedMimeTypes[normalized]; !ok {
		return fmt.Errorf("%w: mime type %q is not allowed", ErrInvalidInput, mimeType)
	}
	return nil
}

// IsImageMime reports whether the MIME type is a thumbnail-eligible image.
func IsImageMime(mimeType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch normalized {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/tiff":
		return true
	}
	return false
}
