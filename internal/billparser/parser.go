package billparser

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"solarbill/internal/domain"
)

// brazilianStates is the UF allow-list for city/state extraction.
var brazilianStates = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// Name shapes: an all-caps run, or title-case words joined by Portuguese
// particles ("Joao da Silva").
const (
	capsName  = `\p{Lu}{2,}(?:[ \t]+\p{Lu}[\p{Lu}'.]*){1,7}`
	titleName = `\p{Lu}\p{Ll}+(?:[ \t]+(?:\p{Lu}\p{Ll}+|d[aoe]s?|e)){1,7}`
)

var (
	ufSuffix = regexp.MustCompile(`[-/][ \t]*[A-Z]{2}\b`)

	cityPattern = regexp.MustCompile(`(?m)^[ \t]*(?:CEP[ \t:]*\d{5}-?\d{3}[ \t]+)?(\p{Lu}[\p{L}' ]{2,40}?)[ \t]*[-/][ \t]*([A-Z]{2})\b`)

	consumptionLabeled = regexp.MustCompile(`(?i)CONSUMO(?:[ \t]+(?:FATURADO|ATIVO|TOTAL|MEDIDO|DO[ \t]+M[ÊE]S))?[ \t]*(?:\(KWH\))?[ \t:]*(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?)[ \t]*KWH`)
	consumptionBare    = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?)[ \t]*KWH\b`)

	tariffLabeled = regexp.MustCompile(`(?i)(?:TARIFA|PRE[ÇC]O(?:[ \t]+UNIT[AÁ]RIO)?)[^\d\n]{0,40}?(\d+[.,]\d{2,8})`)
	tariffBare    = regexp.MustCompile(`(?:^|[^\d.,])(\d[.,]\d{4,8})(?:[^\d.,]|$)`)

	periodLabeled = regexp.MustCompile(`(?i)(?:REFER[ÊE]NTE(?:[ \t]+A(?:O)?)?|M[ÊE]S/ANO|PER[IÍ]ODO)[ \t:]*((?:JAN|FEV|MAR|ABR|MAI|JUN|JUL|AGO|SET|OUT|NOV|DEZ)[A-ZÇ]*/\d{2,4}|\d{2}/\d{4})`)
	periodBare    = regexp.MustCompile(`(?:^|[^/\d])(\d{2}/\d{4})\b`)

	dueLabeled = regexp.MustCompile(`(?i)VENCIMENTO[ \t:]*(\d{2}/\d{2}/\d{4})`)
	dueShort   = regexp.MustCompile(`(?i)VENC\.?[^\d\n]{0,20}(\d{2}/\d{2}/\d{4})`)
)

// Parser turns raw OCR text from a bill into a record.
type Parser struct {
	rules     Rules
	stopwords map[string]struct{}
	markers   map[string]struct{}
	idPattern *regexp.Regexp
	providers []*regexp.Regexp

	names     *Engine
	addresses *Engine
	cities    *Engine

	jitter func() float64
	log    zerolog.Logger
}

// Option customizes a Parser.
type Option func(*Parser)

// WithJitter overrides the random source for synthetic history.
func WithJitter(f func() float64) Option {
	return func(p *Parser) { p.jitter = f }
}

// NewParser compiles rules into a parser.
func NewParser(rules Rules, log zerolog.Logger, opts ...Option) (*Parser, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parser rules: %w", err)
	}
	p := &Parser{
		rules:     rules,
		stopwords: upperSet(rules.NameStopwords),
		markers:   upperSet(rules.ResidentialMarkers),
		idPattern: regexp.MustCompile(fmt.Sprintf(`(?:^|\D)(%s\d{%d})(?:\D|$)`,
			regexp.QuoteMeta(rules.IdentifierPrefix), domain.CustomerIDLength-len(rules.IdentifierPrefix))),
		jitter: rand.Float64,
		log:    log,
	}
	for _, name := range rules.Providers {
		p.providers = append(p.providers, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
	}
	p.names = p.nameEngine()
	p.addresses = p.addressEngine()
	p.cities = p.cityEngine()
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse extracts every field it can. Missing fields keep their sentinels.
func (p *Parser) Parse(raw string) *domain.ExtractedBillRecord {
	rec := domain.NewEmptyRecord()
	text := normalizeText(raw)
	if strings.TrimSpace(text) == "" {
		return rec
	}

	seg := segment(text, p.idPattern, p.rules.ClientRegionLines)
	anchor := Anchor{Offset: seg.idOffset}

	rec.CustomerID = p.customerID(seg)
	rec.CustomerName = p.pick(p.names, seg, anchor)
	rec.Address = p.pick(p.addresses, seg, anchor)
	if c, ok := p.bestCity(seg, anchor); ok {
		rec.City, rec.State = c.city, c.state
	}
	rec.Provider = p.provider(text)
	rec.ConsumptionKWh = firstAccepted(text, plausibleConsumption, consumptionLabeled, consumptionBare)
	rec.Tariff = firstAccepted(text, domain.IsPlausibleTariff, tariffLabeled, tariffBare)
	rec.BillingPeriod = firstMatch(text, periodLabeled, periodBare)
	rec.DueDate = firstMatch(text, dueLabeled, dueShort)

	rec.ConsumptionHistory = ExtractHistory(text)
	if len(rec.ConsumptionHistory) == 0 && rec.ConsumptionKWh > 0 {
		rec.ConsumptionHistory = SyntheticHistory(rec.ConsumptionKWh, p.jitter)
		rec.HistorySynthetic = true
		p.log.Warn().Float64("consumption_kwh", rec.ConsumptionKWh).
			Msg("no consumption history found, generated synthetic history")
	}

	rec.Normalize()
	p.log.Debug().
		Int("identifier_line", seg.idLine).
		Str("customer_id", rec.CustomerID).
		Int("history_entries", len(rec.ConsumptionHistory)).
		Msg("bill text parsed")
	return rec
}

func (p *Parser) customerID(seg segments) string {
	for _, region := range []string{seg.client, seg.text} {
		for _, m := range p.idPattern.FindAllStringSubmatch(region, -1) {
			if domain.IsValidCustomerID(m[1]) {
				return m[1]
			}
		}
	}
	return domain.NotAvailable
}

// pick searches the client region, then the text after the identifier.
func (p *Parser) pick(e *Engine, seg segments, anchor Anchor) string {
	if c, ok := e.Best(seg.client, seg.clientOffset, anchor); ok {
		return c.Value
	}
	if rest, base := seg.afterIdentifier(); rest != "" {
		if c, ok := e.Best(rest, base, anchor); ok {
			return c.Value
		}
	}
	return domain.NotAvailable
}

type cityState struct {
	city  string
	state string
}

func (p *Parser) bestCity(seg segments, anchor Anchor) (cityState, bool) {
	regions := []struct {
		text string
		base int
	}{{seg.client, seg.clientOffset}, {seg.data, seg.dataOffset}, {seg.header, 0}}
	for _, r := range regions {
		if r.text == "" {
			continue
		}
		c, ok := p.cities.Best(r.text, r.base, anchor)
		if !ok {
			continue
		}
		m := cityPattern.FindStringSubmatch(c.Line)
		if m == nil {
			continue
		}
		return cityState{city: cleanValue(m[1]), state: m[2]}, true
	}
	return cityState{}, false
}

func (p *Parser) provider(text string) string {
	for i, re := range p.providers {
		if re.MatchString(text) {
			return strings.ToUpper(p.rules.Providers[i])
		}
	}
	return domain.NotAvailable
}

func (p *Parser) nameEngine() *Engine {
	validate := func(c Candidate) bool {
		if len([]rune(c.Value)) < p.rules.NameMinLength || len([]rune(c.Value)) > p.rules.NameMaxLength {
			return false
		}
		words := strings.Fields(c.Value)
		if len(words) < 2 {
			return false
		}
		if containsAny(c.Value, p.rules.BusinessKeywords) {
			return false
		}
		for _, w := range words {
			if _, stop := p.stopwords[strings.ToUpper(strings.Trim(w, ".,:"))]; stop {
				return false
			}
		}
		// city lines ("BELO HORIZONTE - MG") look like names
		return !ufSuffix.MatchString(c.Line)
	}
	w := p.rules.Weights
	score := func(c Candidate, a Anchor) int {
		s := p.proximity(c, a)
		words := strings.Fields(c.Value)
		s += w.PerWord * len(words)
		if strings.IndexFunc(c.Value, unicode.IsDigit) >= 0 {
			s += w.ContainsDigit
		}
		for _, word := range words {
			if len([]rune(word)) < 3 {
				s += w.ShortWord
				break
			}
		}
		return s
	}
	return NewEngine(
		Rule{
			Name:     "labeled",
			Pattern:  regexp.MustCompile(`(?im)^[ \t]*(?:NOME|CLIENTE|TITULAR|CONSUMIDOR)[ \t]*:?[ \t]*(\p{Lu}[\p{L}'.]*(?:[ \t]+[\p{L}'.]+){1,7})[ \t]*$`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "after_identifier",
			Pattern:  regexp.MustCompile(`(?:^|\D)\d{10}[ \t]*[-:]?[ \t]+(` + capsName + `|` + titleName + `)`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "caps_line",
			Pattern:  regexp.MustCompile(`(?m)^[ \t]*(` + capsName + `)[ \t]*$`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "caps_prefix",
			Pattern:  regexp.MustCompile(`(?m)^[ \t]*(\p{Lu}{2,}(?:[ \t]+\p{Lu}+){1,7})`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "title_line",
			Pattern:  regexp.MustCompile(`(?m)^[ \t]*(` + titleName + `)[ \t]*$`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
	)
}

func (p *Parser) addressEngine() *Engine {
	validate := func(c Candidate) bool {
		n := len([]rune(c.Value))
		if n < 8 || n > 120 {
			return false
		}
		if strings.IndexFunc(c.Value, unicode.IsLetter) < 0 {
			return false
		}
		return !containsAny(c.Value, p.rules.BusinessAddressKeywords) &&
			!containsAny(c.Value, p.rules.BusinessKeywords)
	}
	w := p.rules.Weights
	score := func(c Candidate, a Anchor) int {
		s := p.proximity(c, a)
		seen := map[string]bool{}
		for _, tok := range strings.FieldsFunc(strings.ToUpper(c.Value), func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if _, ok := p.markers[tok]; ok && !seen[tok] {
				s += w.ResidentialMarker
				seen[tok] = true
			}
		}
		if strings.IndexFunc(c.Value, unicode.IsDigit) >= 0 {
			s += w.StreetNumber
		}
		return s
	}
	return NewEngine(
		Rule{
			Name:     "labeled",
			Pattern:  regexp.MustCompile(`(?im)^[ \t]*ENDERE[ÇC]O[ \t]*:?[ \t]*(\S[^\n]{7,119})$`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "street",
			Pattern:  regexp.MustCompile(`(?im)(?:^|[ \t])((?:RUA|R\.|AVENIDA|AV\.?|TRAVESSA|TV\.|ALAMEDA|AL\.|RODOVIA|ROD\.|PRA[ÇC]A|ESTRADA|EST\.)[ \t]+[^\n]{3,100})`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
		Rule{
			Name:     "district",
			Pattern:  regexp.MustCompile(`(?im)^[ \t]*([\p{L}0-9 .,'º°/-]{10,100}\b(?:CENTRO|BAIRRO|JARDIM|VILA|PARQUE|CONJUNTO)\b[^\n]*)`),
			Group:    1,
			Validate: validate,
			Score:    score,
		},
	)
}

func (p *Parser) cityEngine() *Engine {
	validate := func(c Candidate) bool {
		m := cityPattern.FindStringSubmatch(c.Line)
		if m == nil {
			return false
		}
		if _, ok := brazilianStates[m[2]]; !ok {
			return false
		}
		if containsAny(c.Line, p.rules.BusinessAddressKeywords) || containsAny(c.Value, p.rules.BusinessKeywords) {
			return false
		}
		for _, w := range strings.Fields(c.Value) {
			if _, stop := p.stopwords[strings.ToUpper(w)]; stop {
				return false
			}
		}
		return true
	}
	return NewEngine(Rule{
		Name:     "city_uf",
		Pattern:  cityPattern,
		Group:    1,
		Validate: validate,
		Score:    p.proximity,
	})
}

// proximity rewards candidates shortly after the identifier.
func (p *Parser) proximity(c Candidate, a Anchor) int {
	if a.Offset < 0 {
		return 0
	}
	d := c.Offset - a.Offset
	if d > 0 && d <= p.rules.Weights.ProximityChars {
		return p.rules.Weights.NearIdentifier
	}
	return 0
}

func firstAccepted(text string, accept func(float64) bool, patterns ...*regexp.Regexp) float64 {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := ParseDecimal(m[1]); ok && accept(v) {
				return v
			}
		}
	}
	return 0
}

func plausibleConsumption(v float64) bool {
	return v > 0 && v <= domain.MaxConsumptionKWh
}

func firstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return domain.NotAvailable
}
