package billparser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"solarbill/internal/domain"
)

// CanonicalMonths lists the Portuguese month names in calendar order.
var CanonicalMonths = []string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

var monthAbbrev = map[string]string{
	"JAN": "janeiro",
	"FEV": "fevereiro",
	"MAR": "março",
	"ABR": "abril",
	"MAI": "maio",
	"JUN": "junho",
	"JUL": "julho",
	"AGO": "agosto",
	"SET": "setembro",
	"OUT": "outubro",
	"NOV": "novembro",
	"DEZ": "dezembro",
}

// historyPattern matches chart triplets like "MAR/24 189,6".
var historyPattern = regexp.MustCompile(
	`(?i)\b(JAN|FEV|MAR|ABR|MAI|JUN|JUL|AGO|SET|OUT|NOV|DEZ)/(\d{2})\b[ \t]+(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?)`,
)

// ExtractHistory reads month/year/kWh triplets from text, keeping the last
// twelve valid entries in document order. Values are rounded to whole kWh.
func ExtractHistory(text string) []domain.ConsumptionHistoryEntry {
	var out []domain.ConsumptionHistoryEntry
	for _, m := range historyPattern.FindAllStringSubmatch(text, -1) {
		month, ok := monthAbbrev[strings.ToUpper(m[1])]
		if !ok {
			continue
		}
		yy, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		v, ok := ParseDecimal(m[3])
		if !ok || v < 0 || v > domain.MaxConsumptionKWh {
			continue
		}
		year := 2000 + yy
		out = append(out, domain.ConsumptionHistoryEntry{
			Month:          month,
			ConsumptionKWh: math.Round(v),
			Year:           &year,
		})
	}
	if len(out) > domain.MaxHistoryEntries {
		out = out[len(out)-domain.MaxHistoryEntries:]
	}
	return out
}

// SyntheticHistory fabricates twelve months around consumption with +/-20%
// jitter. jitter must return values in [0,1).
func SyntheticHistory(consumption float64, jitter func() float64) []domain.ConsumptionHistoryEntry {
	out := make([]domain.ConsumptionHistoryEntry, 0, len(CanonicalMonths))
	for _, month := range CanonicalMonths {
		factor := 0.8 + 0.4*jitter()
		out = append(out, domain.ConsumptionHistoryEntry{
			Month:          month,
			ConsumptionKWh: math.Round(consumption * factor),
		})
	}
	return out
}
