package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"solarbill/internal/billparser"
	"solarbill/internal/config"
	"solarbill/internal/fallback"
	"solarbill/internal/gauth"
	"solarbill/internal/imageprep"
	"solarbill/internal/llm"
	"solarbill/internal/ocr"
	"solarbill/internal/port"
	"solarbill/internal/quality"
)

// Strategy names accepted by extraction.strategy.
const (
	StrategyAuto     = "auto"
	StrategyOCR      = "ocr"
	StrategyLLM      = "llm"
	StrategyFallback = "fallback"
)

// Pipeline is a fully wired orchestrator plus the resources it owns.
type Pipeline struct {
	*Orchestrator
	closers []func() error
}

// Close releases SDK clients opened for the pipeline.
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build wires the extraction pipeline from configuration. Missing or malformed
// credentials never fail the build; the affected path is simply left out.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	rules := billparser.DefaultRules()
	if cfg.Extraction.RulesFile != "" {
		loaded, err := billparser.LoadRules(cfg.Extraction.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("loading parser rules: %w", err)
		}
		rules = loaded
	}

	validator := quality.NewValidator(rules.BusinessKeywords, log.With().Str("component", "quality").Logger())
	prep := imageprep.NewPreprocessor(cfg.Processing, log.With().Str("component", "imageprep").Logger())
	fb := fallback.NewProvider(cfg.Extraction.CustomerHints, log.With().Str("component", "fallback").Logger())

	strategy := strings.ToLower(strings.TrimSpace(cfg.Extraction.Strategy))
	if strategy == "" {
		strategy = StrategyAuto
	}

	switch strategy {
	case StrategyAuto, StrategyOCR, StrategyLLM, StrategyFallback:
	default:
		return nil, fmt.Errorf("unknown extraction strategy: %s", strategy)
	}

	p := &Pipeline{}
	var extractors []port.Extractor

	if strategy == StrategyAuto || strategy == StrategyOCR {
		ex, closer, err := buildOCR(ctx, cfg, rules, validator, log)
		if err != nil {
			log.Warn().Err(err).Msg("ocr path unavailable")
		} else if ex != nil {
			extractors = append(extractors, ex)
			if closer != nil {
				p.closers = append(p.closers, closer)
			}
		}
	}

	if (strategy == StrategyAuto || strategy == StrategyLLM) && cfg.LLM.Enabled() {
		extractors = append(extractors, llm.NewClient(cfg.LLM, cfg.Processing, validator,
			log.With().Str("component", "llm").Logger()))
	}

	p.Orchestrator = NewOrchestrator(prep, fb, validator, log.With().Str("component", "orchestrator").Logger(), extractors...)
	paths := make([]string, 0, len(extractors))
	for _, path := range p.Paths() {
		paths = append(paths, string(path))
	}
	log.Info().Str("strategy", strategy).Strs("paths", paths).Msg("extraction pipeline ready")
	return p, nil
}

func buildOCR(ctx context.Context, cfg *config.Config, rules billparser.Rules, validator *quality.Validator, log zerolog.Logger) (port.Extractor, func() error, error) {
	if !cfg.Google.HasCredentials() {
		return nil, nil, nil
	}
	account, err := gauth.LoadServiceAccount(&cfg.Google)
	if err != nil {
		return nil, nil, err
	}

	parser, err := billparser.NewParser(rules, log.With().Str("component", "billparser").Logger())
	if err != nil {
		return nil, nil, err
	}

	manager := gauth.NewManager(*account, cfg.Google, cfg.Processing, gauth.NewTokenCache(),
		log.With().Str("component", "gauth").Logger())
	ocrLog := log.With().Str("component", "ocr").Logger()

	var (
		detector port.TextDetector
		closer   func() error
	)
	switch strings.ToLower(cfg.Google.OCRBackend) {
	case "sdk":
		client, err := ocr.NewSDKClient(ctx, manager.TokenSource(ctx), ocrLog)
		if err != nil {
			return nil, nil, err
		}
		detector, closer = client, client.Close
	case "", "rest":
		detector = ocr.NewRESTClient(cfg.Google, cfg.Processing, ocrLog)
	default:
		return nil, nil, fmt.Errorf("unknown ocr backend: %s", cfg.Google.OCRBackend)
	}

	return NewOCRExtractor(manager, detector, parser, validator, log.With().Str("component", "ocr_extractor").Logger()), closer, nil
}
