package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solarbill/internal/domain"
	"solarbill/internal/fallback"
	"solarbill/internal/imageprep"
	"solarbill/internal/port"
	"solarbill/internal/quality"
)

// State is a step of one pipeline run.
type State string

const (
	StateNotStarted State = "not_started"
	StateValidating State = "validating"
	StateOCR        State = "ocr"
	StateLLM        State = "llm"
	StateFallback   State = "fallback"
	StateDone       State = "done"
)

// StageTransition records entering a state.
type StageTransition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Result is what one pipeline run produced.
type Result struct {
	Record   *domain.ExtractedBillRecord
	Path     domain.ProcessingPath
	Score    float64
	Issues   []string
	Warnings []string
	Stages   []StageTransition
	// Err is why the run ended on the fallback path, nil otherwise.
	Err error
}

// Orchestrator runs preprocessing, the configured extractors in order, and
// the fallback provider when every extractor fails.
type Orchestrator struct {
	prep       *imageprep.Preprocessor
	extractors []port.Extractor
	fallback   *fallback.Provider
	validator  *quality.Validator
	log        zerolog.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. extractors are tried in order; an
// empty list means no credentials are configured and every run falls back.
func NewOrchestrator(prep *imageprep.Preprocessor, fb *fallback.Provider, validator *quality.Validator, log zerolog.Logger, extractors ...port.Extractor) *Orchestrator {
	return &Orchestrator{
		prep:       prep,
		extractors: extractors,
		fallback:   fb,
		validator:  validator,
		log:        log,
		now:        time.Now,
	}
}

// Paths lists the configured extraction paths in the order they are tried.
func (o *Orchestrator) Paths() []domain.ProcessingPath {
	paths := make([]domain.ProcessingPath, 0, len(o.extractors))
	for _, e := range o.extractors {
		paths = append(paths, e.Name())
	}
	return paths
}

// Process runs the pipeline for one bill. Only input validation failures
// (ErrInvalidFormat, ErrSizeExceeded) are returned as errors; every other
// failure ends in a fallback record.
func (o *Orchestrator) Process(ctx context.Context, in domain.BillInput) (*Result, error) {
	res := &Result{}
	o.enter(res, StateNotStarted, nil)
	log := o.log.With().Str("filename", in.Filename).Logger()

	o.enter(res, StateValidating, nil)
	img, err := o.prep.Validate(in.Data, in.ContentType, in.Filename)
	if err != nil {
		log.Warn().Err(err).Msg("bill rejected by input validation")
		return nil, err
	}

	if len(o.extractors) == 0 {
		log.Warn().Msg("no extraction credentials configured, using fallback")
		return o.finishFallback(res, in.Filename, domain.ErrMissingCredentials), nil
	}

	opt := o.prep.Optimize(ctx, img)
	input := port.ExtractInput{
		Filename:    in.Filename,
		ContentType: opt.ContentType,
		Encoded:     opt.Encoded,
	}

	var lastErr error
	for _, ex := range o.extractors {
		o.enter(res, stateFor(ex.Name()), nil)
		rec, err := o.safeExtract(ctx, ex, input)
		if err != nil {
			lastErr = err
			res.Stages[len(res.Stages)-1].Error = err.Error()
			log.Warn().Err(err).Str("path", string(ex.Name())).Msg("extraction path failed")
			continue
		}

		rec.Normalize()
		report := o.validator.Assess(rec)
		res.Record = rec
		res.Path = ex.Name()
		res.Score = report.Score
		res.Issues = report.Issues
		res.Warnings = report.Warnings
		o.enter(res, StateDone, nil)
		log.Info().Str("path", string(res.Path)).Float64("score", res.Score).Msg("bill extracted")
		return res, nil
	}

	log.Warn().Err(lastErr).Msg("all extraction paths failed, using fallback")
	return o.finishFallback(res, in.Filename, lastErr), nil
}

func (o *Orchestrator) finishFallback(res *Result, filename string, cause error) *Result {
	o.enter(res, StateFallback, cause)
	rec := o.fallback.Fallback(filename)
	rec.Normalize()
	report := o.validator.Validate(rec)

	res.Record = rec
	res.Path = domain.PathFallback
	res.Score = report.Score
	res.Issues = report.Issues
	res.Warnings = report.Warnings
	res.Err = cause
	o.enter(res, StateDone, nil)
	return res
}

// safeExtract turns an extractor panic into an error.
func (o *Orchestrator) safeExtract(ctx context.Context, ex port.Extractor, input port.ExtractInput) (rec *domain.ExtractedBillRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("path", string(ex.Name())).Msg("extractor panicked")
			rec, err = nil, fmt.Errorf("%w: %v", domain.ErrExtractorPanic, r)
		}
	}()
	rec, err = ex.Extract(ctx, input)
	if err == nil && rec == nil {
		err = errors.New("extractor returned no record")
	}
	return rec, err
}

func (o *Orchestrator) enter(res *Result, s State, cause error) {
	t := StageTransition{State: s, At: o.now()}
	if cause != nil {
		t.Error = cause.Error()
	}
	res.Stages = append(res.Stages, t)
}

func stateFor(p domain.ProcessingPath) State {
	switch p {
	case domain.PathOCR:
		return StateOCR
	case domain.PathLLM:
		return StateLLM
	default:
		return StateFallback
	}
}
