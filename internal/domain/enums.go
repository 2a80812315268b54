package domain

import (
	"path/filepath"
	"strings"
)

// ImageType represents an accepted bill image format.
type ImageType string

const (
	ImageTypeJPEG ImageType = "jpeg"
	ImageTypePNG  ImageType = "png"
	ImageTypeWEBP ImageType = "webp"
)

// AllowedContentTypes maps MIME content types to ImageType.
var AllowedContentTypes = map[string]ImageType{
	"image/jpeg": ImageTypeJPEG,
	"image/jpg":  ImageTypeJPEG,
	"image/png":  ImageTypePNG,
	"image/webp": ImageTypeWEBP,
}

// AllowedExtensions maps file extensions (without dot) to ImageType.
var AllowedExtensions = map[string]ImageType{
	"jpg":  ImageTypeJPEG,
	"jpeg": ImageTypeJPEG,
	"png":  ImageTypePNG,
	"webp": ImageTypeWEBP,
}

// DetectImageType resolves the image type from the declared MIME type, then the
// filename extension. ok is false when neither is on the allow-list.
func DetectImageType(contentType, filename string) (ImageType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if t, ok := AllowedContentTypes[ct]; ok {
		return t, true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if t, ok := AllowedExtensions[ext]; ok {
		return t, true
	}
	return "", false
}

// ProcessingPath tags which strategy produced a record.
type ProcessingPath string

const (
	PathOCR      ProcessingPath = "ocr"
	PathLLM      ProcessingPath = "llm"
	PathFallback ProcessingPath = "fallback"
)

// ExtractionStatus is the lifecycle state of a persisted extraction.
type ExtractionStatus string

const (
	ExtractionStatusPending   ExtractionStatus = "pending"
	ExtractionStatusCompleted ExtractionStatus = "completed"
	ExtractionStatusDegraded  ExtractionStatus = "degraded"
	ExtractionStatusFailed    ExtractionStatus = "failed"
)

// StatusForPath maps a processing path to the stored status. Fallback records
// are flagged for manual review.
func StatusForPath(p ProcessingPath) ExtractionStatus {
	if p == PathFallback {
		return ExtractionStatusDegraded
	}
	return ExtractionStatusCompleted
}
