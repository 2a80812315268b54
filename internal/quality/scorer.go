package quality

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"solarbill/internal/domain"
)

// Check weights. They sum to 1.
const (
	weightIdentifier   = 0.15
	weightName         = 0.15
	weightAddress      = 0.10
	weightCity         = 0.05
	weightTariff       = 0.15
	weightConsumption  = 0.15
	weightHistory      = 0.10
	weightHistoryDense = 0.10
	weightProvider     = 0.05

	denseHistoryRatio = 0.8
)

// Report is the outcome of assessing one record.
type Report struct {
	Score    float64  `json:"score"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Score returns a 0-1 confidence for rec.
func Score(rec *domain.ExtractedBillRecord) float64 {
	if rec == nil {
		return 0
	}
	var s float64
	if domain.IsValidCustomerID(rec.CustomerID) {
		s += weightIdentifier
	}
	if present(rec.CustomerName) {
		s += weightName
	}
	if present(rec.Address) {
		s += weightAddress
	}
	if present(rec.City) {
		s += weightCity
	}
	if domain.IsPlausibleTariff(rec.Tariff) {
		s += weightTariff
	}
	if rec.ConsumptionKWh > 0 {
		s += weightConsumption
	}
	if n := len(rec.ConsumptionHistory); n > 0 {
		s += weightHistory
		if float64(n-zeroMonths(rec))/float64(n) >= denseHistoryRatio {
			s += weightHistoryDense
		}
	}
	if present(rec.Provider) {
		s += weightProvider
	}
	if s > 1 {
		s = 1
	}
	return s
}

// Validator annotates records with issues and warnings. It never fails.
type Validator struct {
	businessKeywords []string
	log              zerolog.Logger
}

// NewValidator creates a validator that flags names and addresses containing
// any of businessKeywords.
func NewValidator(businessKeywords []string, log zerolog.Logger) *Validator {
	return &Validator{businessKeywords: businessKeywords, log: log}
}

// Assess scores rec and lists what is wrong with it, without logging.
func (v *Validator) Assess(rec *domain.ExtractedBillRecord) Report {
	r := Report{Issues: []string{}, Warnings: []string{}}
	if rec == nil {
		r.Issues = append(r.Issues, "record is missing")
		return r
	}
	r.Score = Score(rec)

	if kw := v.leakedKeyword(rec.CustomerName); kw != "" {
		r.Issues = append(r.Issues, fmt.Sprintf("customer name contains business keyword %q", kw))
	}
	if kw := v.leakedKeyword(rec.Address); kw != "" {
		r.Issues = append(r.Issues, fmt.Sprintf("address contains business keyword %q", kw))
	}
	switch {
	case !present(rec.CustomerID):
		r.Warnings = append(r.Warnings, "customer identifier not found")
	case !domain.IsValidCustomerID(rec.CustomerID):
		r.Issues = append(r.Issues, fmt.Sprintf("customer identifier %q is not %d digits", rec.CustomerID, domain.CustomerIDLength))
	}
	if rec.Tariff != 0 && !domain.IsPlausibleTariff(rec.Tariff) {
		r.Issues = append(r.Issues, fmt.Sprintf("tariff %.4f outside %.1f-%.1f", rec.Tariff, domain.MinTariff, domain.MaxTariff))
	}
	if rec.Tariff == 0 {
		r.Warnings = append(r.Warnings, "tariff not found")
	}
	if rec.ConsumptionKWh <= 0 {
		r.Warnings = append(r.Warnings, "current consumption not found")
	}

	switch {
	case len(rec.ConsumptionHistory) == 0:
		r.Warnings = append(r.Warnings, "consumption history missing")
	case rec.HistorySynthetic:
		r.Warnings = append(r.Warnings, "consumption history is synthetic")
	}
	if z := zeroMonths(rec); z > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d month(s) with zero consumption", z))
	}
	return r
}

// Validate is Assess plus an operational log line per finding.
func (v *Validator) Validate(rec *domain.ExtractedBillRecord) Report {
	r := v.Assess(rec)
	for _, issue := range r.Issues {
		v.log.Error().Str("issue", issue).Msg("extracted record failed validation")
	}
	for _, w := range r.Warnings {
		v.log.Warn().Str("warning", w).Msg("extracted record validation warning")
	}
	v.log.Info().Float64("score", r.Score).Int("issues", len(r.Issues)).
		Int("warnings", len(r.Warnings)).Msg("extracted record assessed")
	return r
}

func (v *Validator) leakedKeyword(field string) string {
	if !present(field) {
		return ""
	}
	up := strings.ToUpper(field)
	for _, kw := range v.businessKeywords {
		if kw != "" && strings.Contains(up, strings.ToUpper(kw)) {
			return kw
		}
	}
	return ""
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != domain.NotAvailable
}

func zeroMonths(rec *domain.ExtractedBillRecord) int {
	n := 0
	for _, e := range rec.ConsumptionHistory {
		if e.ConsumptionKWh == 0 {
			n++
		}
	}
	return n
}
