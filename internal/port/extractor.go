package port

import (
	"context"

	"solarbill/internal/domain"
)

// ExtractInput carries one preprocessed bill to an extraction strategy.
type ExtractInput struct {
	Filename    string
	ContentType string
	// Encoded is the base64 transport encoding of the (possibly resized) image.
	Encoded string
	// DocumentText is raw text already available for the document, if any.
	DocumentText string
}

// Extractor turns one bill into a normalized record.
type Extractor interface {
	Extract(ctx context.Context, input ExtractInput) (*domain.ExtractedBillRecord, error)
	Name() domain.ProcessingPath
}
