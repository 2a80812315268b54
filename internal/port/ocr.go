package port

import "context"

// TokenProvider returns a bearer token for the cloud OCR API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TextDetector runs cloud text detection over a base64-encoded image.
type TextDetector interface {
	DetectText(ctx context.Context, encodedImage, token string) (string, error)
}
