package billparser

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Weights tunes candidate scoring for names, addresses and cities.
type Weights struct {
	NearIdentifier    int `yaml:"near_identifier"`
	ProximityChars    int `yaml:"proximity_chars"`
	PerWord           int `yaml:"per_word"`
	ContainsDigit     int `yaml:"contains_digit"`
	ShortWord         int `yaml:"short_word"`
	ResidentialMarker int `yaml:"residential_marker"`
	StreetNumber      int `yaml:"street_number"`
}

// Rules is the layout-specific tuning data of the parser. The defaults are
// tuned for CEMIG bills; other layouts should ship their own rules file.
type Rules struct {
	IdentifierPrefix        string   `yaml:"identifier_prefix"`
	ClientRegionLines       int      `yaml:"client_region_lines"`
	NameMinLength           int      `yaml:"name_min_length"`
	NameMaxLength           int      `yaml:"name_max_length"`
	BusinessKeywords        []string `yaml:"business_keywords"`
	BusinessAddressKeywords []string `yaml:"business_address_keywords"`
	NameStopwords           []string `yaml:"name_stopwords"`
	ResidentialMarkers      []string `yaml:"residential_markers"`
	Providers               []string `yaml:"providers"`
	Weights                 Weights  `yaml:"weights"`
}

// DefaultRules returns the built-in CEMIG tuning.
func DefaultRules() Rules {
	return Rules{
		IdentifierPrefix:  "30",
		ClientRegionLines: 20,
		NameMinLength:     5,
		NameMaxLength:     60,
		BusinessKeywords: []string{
			"CEMIG", "DISTRIBUIÇÃO", "DISTRIBUICAO", "S.A.", "S/A", "LTDA", "CNPJ",
			"INSCRIÇÃO ESTADUAL", "INSCRICAO ESTADUAL", "COMPANHIA ENERGETICA",
			"COMPANHIA ENERGÉTICA", "ANEEL", "OUVIDORIA", "AGÊNCIA NACIONAL",
		},
		BusinessAddressKeywords: []string{
			"BARBACENA", "SANTO AGOSTINHO", "30190", "CEMIG", "CNPJ",
		},
		NameStopwords: []string{
			"RUA", "AV", "AVENIDA", "TRAVESSA", "ALAMEDA", "RODOVIA", "PRAÇA", "PRACA",
			"ESTRADA", "CEP", "BAIRRO", "CENTRO", "APTO", "BLOCO", "CASA",
			"CONTA", "TOTAL", "VENCIMENTO", "REFERENTE", "ENERGIA", "ELÉTRICA", "ELETRICA",
			"NOTA", "FISCAL", "FATURA", "CLASSE", "SUBCLASSE", "RESIDENCIAL", "COMERCIAL",
			"MONOFASICO", "MONOFÁSICO", "BIFASICO", "BIFÁSICO", "TRIFASICO", "TRIFÁSICO",
			"LEITURA", "CONSUMO", "KWH", "VALOR", "PAGAR", "DATA", "EMISSÃO", "EMISSAO",
			"INSTALAÇÃO", "INSTALACAO", "CLIENTE", "CÓDIGO", "CODIGO", "MÊS", "MES",
			"HISTÓRICO", "HISTORICO", "TARIFA", "BANDEIRA", "DEMONSTRATIVO", "ITEM",
			"IMPOSTOS", "TRIBUTOS", "ICMS", "PIS", "COFINS", "MEDIDOR", "TELEFONE",
			"FONE", "ATENDIMENTO", "AUTORIZADO", "DÉBITO", "DEBITO", "PROTOCOLO",
		},
		ResidentialMarkers: []string{
			"APTO", "APT", "AP", "BLOCO", "BL", "CASA", "CENTRO", "FUNDOS", "LOTE", "QUADRA",
		},
		Providers: []string{
			"CEMIG", "CPFL", "ENEL", "LIGHT", "COPEL", "CELESC", "EQUATORIAL",
			"ENERGISA", "ELEKTRO", "COELBA", "CELPE", "COSERN", "EDP",
		},
		Weights: Weights{
			NearIdentifier:    50,
			ProximityChars:    200,
			PerWord:           10,
			ContainsDigit:     -30,
			ShortWord:         -20,
			ResidentialMarker: 15,
			StreetNumber:      10,
		},
	}
}

// LoadRules reads a YAML rules file over the defaults. Keys absent from the
// file keep their default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("decoding rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks that the rules can drive the parser.
func (r Rules) Validate() error {
	if r.IdentifierPrefix == "" || len(r.IdentifierPrefix) >= 10 {
		return fmt.Errorf("identifier_prefix must have 1-9 digits, got %q", r.IdentifierPrefix)
	}
	for _, c := range r.IdentifierPrefix {
		if !unicode.IsDigit(c) {
			return fmt.Errorf("identifier_prefix must be numeric, got %q", r.IdentifierPrefix)
		}
	}
	if r.ClientRegionLines <= 0 {
		return fmt.Errorf("client_region_lines must be positive")
	}
	if r.NameMinLength <= 0 || r.NameMaxLength < r.NameMinLength {
		return fmt.Errorf("invalid name length bounds %d-%d", r.NameMinLength, r.NameMaxLength)
	}
	return nil
}

func upperSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

func containsAny(s string, keywords []string) bool {
	up := strings.ToUpper(s)
	for _, k := range keywords {
		if k != "" && strings.Contains(up, strings.ToUpper(k)) {
			return true
		}
	}
	return false
}
