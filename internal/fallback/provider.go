package fallback

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"solarbill/internal/domain"
)

// defaultHints are filename fragments that select the CEMIG record.
var defaultHints = []string{"cemig", "minas", "mg", "bh", "belo"}

var cemigHistory = []float64{238, 226, 251, 244, 262, 275, 281, 268, 255, 249, 240, 250}

var genericHistory = []float64{190, 185, 200, 195, 210, 220, 225, 215, 205, 200, 195, 200}

// Provider supplies canned records when real extraction is not possible.
type Provider struct {
	hints []string
	log   zerolog.Logger
}

// NewProvider creates a provider. customerHints extend the built-in
// filename fragments that select the provider-specific record.
func NewProvider(customerHints []string, log zerolog.Logger) *Provider {
	hints := append([]string{}, defaultHints...)
	for _, h := range customerHints {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hints = append(hints, h)
		}
	}
	return &Provider{hints: hints, log: log}
}

// Fallback returns a fresh, fully populated record chosen by filename.
func (p *Provider) Fallback(filename string) *domain.ExtractedBillRecord {
	if p.matches(filename) {
		p.log.Info().Str("filename", filename).Str("template", "cemig").Msg("using fallback bill record")
		return cemigRecord()
	}
	p.log.Info().Str("filename", filename).Str("template", "generic").Msg("using fallback bill record")
	return genericRecord()
}

func (p *Provider) matches(filename string) bool {
	base := strings.ToLower(filepath.Base(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, h := range p.hints {
		// short hints like "mg" only count as whole tokens
		if len(h) <= 3 {
			for _, tok := range tokens {
				if tok == h {
					return true
				}
			}
			continue
		}
		if strings.Contains(base, h) {
			return true
		}
	}
	return false
}

func cemigRecord() *domain.ExtractedBillRecord {
	return &domain.ExtractedBillRecord{
		Provider:           "CEMIG",
		CustomerName:       "CONSUMIDOR RESIDENCIAL PADRAO",
		Address:            "RUA PRINCIPAL, 100 - CENTRO",
		City:               "BELO HORIZONTE",
		State:              "MG",
		CustomerID:         "3000000000",
		Tariff:             0.95,
		ConsumptionKWh:     250,
		BillingPeriod:      domain.NotAvailable,
		DueDate:            domain.NotAvailable,
		ConsumptionHistory: history(cemigHistory),
	}
}

func genericRecord() *domain.ExtractedBillRecord {
	return &domain.ExtractedBillRecord{
		Provider:           "DISTRIBUIDORA LOCAL",
		CustomerName:       "CLIENTE NAO IDENTIFICADO",
		Address:            "ENDERECO NAO IDENTIFICADO",
		City:               "NAO IDENTIFICADA",
		State:              "BR",
		CustomerID:         "0000000000",
		Tariff:             0.85,
		ConsumptionKWh:     200,
		BillingPeriod:      domain.NotAvailable,
		DueDate:            domain.NotAvailable,
		ConsumptionHistory: history(genericHistory),
	}
}

func history(values []float64) []domain.ConsumptionHistoryEntry {
	out := make([]domain.ConsumptionHistoryEntry, len(values))
	for i, v := range values {
		out[i] = domain.ConsumptionHistoryEntry{Month: months[i], ConsumptionKWh: v}
	}
	return out
}

var months = []string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}
