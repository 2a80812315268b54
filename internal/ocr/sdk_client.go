package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"solarbill/internal/domain"
)

// SDKClient detects text through the Vision gRPC client. Authorization comes
// from the token source it was built with, so the token argument is unused.
type SDKClient struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewSDKClient dials the Vision API using ts for credentials.
func NewSDKClient(ctx context.Context, ts oauth2.TokenSource, log zerolog.Logger, opts ...option.ClientOption) (*SDKClient, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating vision client: %v", domain.ErrOCRFailure, err)
	}
	return &SDKClient{client: client, log: log}, nil
}

// DetectText runs TEXT_DETECTION over the decoded image.
func (c *SDKClient) DetectText(ctx context.Context, encodedImage, _ string) (string, error) {
	content, err := base64.StdEncoding.DecodeString(encodedImage)
	if err != nil {
		return "", fmt.Errorf("%w: decoding image: %v", domain.ErrOCRFailure, err)
	}

	resp, err := c.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{{
				Type:       visionpb.Feature_TEXT_DETECTION,
				MaxResults: 1,
			}},
		}},
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("vision sdk call failed")
		return "", fmt.Errorf("%w: %v", domain.ErrOCRFailure, err)
	}

	text, err := firstDescription(resp)
	if err != nil {
		if errors.Is(err, domain.ErrNoTextDetected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrOCRFailure, err)
	}
	return strings.TrimRight(text, "\n"), nil
}

// Close releases the underlying connection.
func (c *SDKClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
