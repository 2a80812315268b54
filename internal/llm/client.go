package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/httpretry"
	"solarbill/internal/port"
	"solarbill/internal/quality"
)

const defaultModel = openai.GPT4oMini

// Client extracts bill records with a chat-completion model. It implements
// port.Extractor.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	retry       httpretry.Policy
	validator   *quality.Validator
	log         zerolog.Logger
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	sleeper    httpretry.Sleeper
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithSleeper overrides the backoff sleeper.
func WithSleeper(s httpretry.Sleeper) Option {
	return func(o *clientOptions) { o.sleeper = s }
}

// NewClient builds an LLM extractor. BaseURL, when set, points the client at
// any OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig, pcfg config.ProcessingConfig, validator *quality.Validator, log zerolog.Logger, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = pcfg.APITimeout
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = o.httpClient

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry: httpretry.Policy{
			MaxAttempts: pcfg.MaxRetries,
			BaseDelay:   pcfg.RetryDelay,
			Backoff:     httpretry.Exponential,
			Sleep:       o.sleeper,
		},
		validator: validator,
		log:       log,
	}
}

// Name implements port.Extractor.
func (c *Client) Name() domain.ProcessingPath {
	return domain.PathLLM
}

// Extract implements port.Extractor. Document text is preferred; without it
// the encoded image is sent as a data URI.
func (c *Client) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractedBillRecord, error) {
	var msg openai.ChatCompletionMessage
	switch {
	case input.DocumentText != "":
		msg = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: textUserPrompt + input.DocumentText,
		}
	case input.Encoded != "":
		msg = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: imageUserPrompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", input.ContentType, input.Encoded),
						Detail: openai.ImageURLDetailHigh,
					},
				},
			},
		}
	default:
		return nil, fmt.Errorf("%w: no document text or image to send", domain.ErrLLMAPIFailure)
	}
	return c.complete(ctx, msg)
}

// ExtractStructured runs the extraction prompt over raw document text.
func (c *Client) ExtractStructured(ctx context.Context, documentText string) (*domain.ExtractedBillRecord, error) {
	return c.Extract(ctx, port.ExtractInput{DocumentText: documentText})
}

func (c *Client) complete(ctx context.Context, user openai.ChatCompletionMessage) (*domain.ExtractedBillRecord, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := httpretry.Do(ctx, c.retry, c.log, func(attempt int) error {
		r, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return classify(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Str("model", c.model).Msg("completion request failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMAPIFailure, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrInvalidLLMResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return nil, fmt.Errorf("%w: output truncated (finish_reason: length)", domain.ErrInvalidLLMResponse)
	}

	rec, warnings, err := decodeBill(choice.Message.Content)
	if err != nil {
		c.log.Warn().Err(err).Str("model", c.model).Msg("unusable completion content")
		return nil, err
	}
	for _, w := range warnings {
		c.log.Warn().Str("warning", w).Msg("coerced completion field")
	}
	if c.validator != nil {
		c.validator.Validate(rec)
	}
	c.log.Info().Str("model", c.model).Int("total_tokens", resp.Usage.TotalTokens).Msg("bill extracted by language model")
	return rec, nil
}

// classify marks rate limits, server errors and timeouts as transient.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if httpretry.ShouldRetry(apiErr.HTTPStatusCode) {
			return httpretry.Transient(err, apiErr.HTTPStatusCode)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if httpretry.ShouldRetry(reqErr.HTTPStatusCode) {
			return httpretry.Transient(err, reqErr.HTTPStatusCode)
		}
		return err
	}
	if httpretry.IsTimeout(err) {
		return httpretry.Transient(err, 0)
	}
	return err
}
