package extraction

import (
	"context"

	"github.com/rs/zerolog"

	"solarbill/internal/billparser"
	"solarbill/internal/domain"
	"solarbill/internal/port"
	"solarbill/internal/quality"
)

// OCRExtractor is the cloud OCR plus contextual parser strategy.
type OCRExtractor struct {
	tokens    port.TokenProvider
	detector  port.TextDetector
	parser    *billparser.Parser
	validator *quality.Validator
	log       zerolog.Logger
}

// NewOCRExtractor wires a token source, a text detector and a parser.
func NewOCRExtractor(tokens port.TokenProvider, detector port.TextDetector, parser *billparser.Parser, validator *quality.Validator, log zerolog.Logger) *OCRExtractor {
	return &OCRExtractor{
		tokens:    tokens,
		detector:  detector,
		parser:    parser,
		validator: validator,
		log:       log,
	}
}

// Name implements port.Extractor.
func (e *OCRExtractor) Name() domain.ProcessingPath {
	return domain.PathOCR
}

// Extract implements port.Extractor.
func (e *OCRExtractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractedBillRecord, error) {
	text := input.DocumentText
	if text == "" {
		token, err := e.tokens.Token(ctx)
		if err != nil {
			return nil, domain.NewStageError(domain.StageAuth, err, "")
		}
		text, err = e.detector.DetectText(ctx, input.Encoded, token)
		if err != nil {
			return nil, domain.NewStageError(domain.StageOCR, err, input.Filename)
		}
	}

	e.log.Debug().Str("filename", input.Filename).Int("text_length", len(text)).Msg("text detected")
	rec := e.parser.Parse(text)
	if e.validator != nil {
		e.validator.Validate(rec)
	}
	return rec, nil
}
