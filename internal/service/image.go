package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp" // Register WebP decoder

	"nexora/internal/models"
)

// DefaultImageMaxUploadSizeMB caps uploads when no limit is configured.
const DefaultImageMaxUploadSizeMB = 10

// UploadFile is a file received from a form.
type UploadFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ImageValidator accepts decodable PNG, JPEG, GIF and WebP images under a size cap.
type ImageValidator struct {
	maxBytes int64
}

// NewImageValidator creates a validator; maxSizeMB <= 0 uses the default.
func NewImageValidator(maxSizeMB int) *ImageValidator {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultImageMaxUploadSizeMB
	}
	return &ImageValidator{maxBytes: int64(maxSizeMB) << 20}
}

// Validate checks f and returns the content type to store it with.
func (v *ImageValidator) Validate(f *UploadFile) (string, error) {
	if f == nil || len(f.Content) == 0 {
		return "", models.NewValidationError("An image file is required")
	}
	if int64(len(f.Content)) > v.maxBytes {
		return "", models.NewValidationError(fmt.Sprintf("Image too large (max %d MB)", v.maxBytes>>20))
	}
	if strings.TrimSpace(filepath.Base(f.Filename)) == "" || filepath.Base(f.Filename) == "." {
		return "", models.NewValidationError("Image file name is required")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(f.Content))
	if err != nil {
		return "", models.NewValidationError("Unsupported image format")
	}
	return "image/" + format, nil
}
