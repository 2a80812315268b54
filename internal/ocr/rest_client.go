package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/httpretry"
)

const featureTextDetection = "TEXT_DETECTION"

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

// RESTClient calls the images:annotate endpoint directly with a bearer token.
type RESTClient struct {
	endpoint string
	client   *http.Client
	retry    httpretry.Policy
	log      zerolog.Logger
}

// Option customizes a RESTClient.
type Option func(*RESTClient)

// WithEndpoint overrides the annotate URL.
func WithEndpoint(url string) Option {
	return func(c *RESTClient) { c.endpoint = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) { c.client = hc }
}

// WithSleeper overrides the backoff sleeper.
func WithSleeper(s httpretry.Sleeper) Option {
	return func(c *RESTClient) { c.retry.Sleep = s }
}

// NewRESTClient creates a text detector backed by the Vision REST API.
// Every attempt is bounded by the API timeout; transient failures back off
// exponentially from the configured retry delay.
func NewRESTClient(gcfg config.GoogleConfig, pcfg config.ProcessingConfig, log zerolog.Logger, opts ...Option) *RESTClient {
	c := &RESTClient{
		endpoint: gcfg.VisionEndpoint,
		client:   &http.Client{Timeout: pcfg.APITimeout},
		retry: httpretry.Policy{
			MaxAttempts: pcfg.MaxRetries,
			BaseDelay:   pcfg.RetryDelay,
			Backoff:     httpretry.Exponential,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectText returns the full text of the first annotation.
func (c *RESTClient) DetectText(ctx context.Context, encodedImage, token string) (string, error) {
	body, err := json.Marshal(annotateRequest{
		Requests: []imageRequest{{
			Image:    imageContent{Content: encodedImage},
			Features: []feature{{Type: featureTextDetection, MaxResults: 1}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", domain.ErrOCRFailure, err)
	}

	var text string
	err = httpretry.Do(ctx, c.retry, c.log, func(attempt int) error {
		t, err := c.doRequest(ctx, body, token)
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("text detection attempt failed")
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoTextDetected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrOCRFailure, err)
	}
	return text, nil
}

func (c *RESTClient) doRequest(ctx context.Context, body []byte, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		if httpretry.IsTimeout(err) {
			return "", httpretry.Transient(fmt.Errorf("calling vision api: %w", err), 0)
		}
		return "", fmt.Errorf("calling vision api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("vision api error (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
		if httpretry.ShouldRetry(resp.StatusCode) {
			return "", httpretry.Transient(baseErr, resp.StatusCode)
		}
		return "", baseErr
	}

	var batch visionpb.BatchAnnotateImagesResponse
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(respBody, &batch); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return firstDescription(&batch)
}

// firstDescription pulls responses[0].textAnnotations[0].description.
func firstDescription(batch *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if len(batch.GetResponses()) == 0 {
		return "", domain.ErrNoTextDetected
	}
	first := batch.GetResponses()[0]
	if st := first.GetError(); st != nil && st.GetMessage() != "" {
		return "", fmt.Errorf("vision api image error (code %d): %s", st.GetCode(), st.GetMessage())
	}
	annotations := first.GetTextAnnotations()
	if len(annotations) == 0 || strings.TrimSpace(annotations[0].GetDescription()) == "" {
		return "", domain.ErrNoTextDetected
	}
	return annotations[0].GetDescription(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
