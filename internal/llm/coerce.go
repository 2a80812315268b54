package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"solarbill/internal/billparser"
	"solarbill/internal/domain"
)

var errNoJSONObject = errors.New("no JSON object in response")

// unwrapJSON strips code fences and surrounding prose from a model reply.
func unwrapJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return s[start : end+1], nil
}

// decodeBill turns a model reply into a normalized record plus coercion warnings.
func decodeBill(content string) (*domain.ExtractedBillRecord, []string, error) {
	body, err := unwrapJSON(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidLLMResponse, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing JSON: %v (raw: %s)", domain.ErrInvalidLLMResponse, err, truncate(body, 300))
	}
	if err := compiledBillSchema.Validate(raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidLLMResponse, err)
	}

	var warnings []string
	rec := domain.NewEmptyRecord()
	rec.Provider = textField(raw["provider"])
	rec.CustomerName = textField(raw["customer_name"])
	rec.Address = textField(raw["address"])
	rec.City = textField(raw["city"])
	rec.State = strings.ToUpper(textField(raw["state"]))
	rec.BillingPeriod = textField(raw["billing_period"])
	rec.DueDate = textField(raw["due_date"])

	if id := digitsOnly(textField(raw["customer_id"])); id != "" {
		if domain.IsValidCustomerID(id) {
			rec.CustomerID = id
		} else {
			warnings = append(warnings, fmt.Sprintf("customer_id %q is not %d digits", id, domain.CustomerIDLength))
		}
	}

	rec.Tariff = numberField(raw["tariff"], 0)
	if rec.Tariff != 0 && !domain.IsPlausibleTariff(rec.Tariff) {
		warnings = append(warnings, fmt.Sprintf("tariff %.4f outside plausible range", rec.Tariff))
		rec.Tariff = 0
	}
	rec.ConsumptionKWh = numberField(raw["consumption_kwh"], 0)

	rec.ConsumptionHistory = historyField(raw["consumption_history"])
	rec.Normalize()
	return rec, warnings, nil
}

func textField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// numberField coerces numbers and numeric strings ("254,0 kWh", "R$ 0,95").
func numberField(v interface{}, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
				return r
			}
			return -1
		}, t)
		return billparser.ParseDecimalOr(cleaned, def)
	default:
		return def
	}
}

func historyField(v interface{}) []domain.ConsumptionHistoryEntry {
	items, _ := v.([]interface{})
	out := make([]domain.ConsumptionHistoryEntry, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		month := strings.ToLower(textField(obj["month"]))
		if month == "" {
			continue
		}
		kwh := numberField(obj["consumption_kwh"], math.NaN())
		if math.IsNaN(kwh) || kwh < 0 || kwh > domain.MaxConsumptionKWh {
			continue
		}
		entry := domain.ConsumptionHistoryEntry{Month: month, ConsumptionKWh: math.Round(kwh)}
		if y := int(numberField(obj["year"], 0)); y >= 2000 && y <= 2100 {
			entry.Year = &y
		}
		out = append(out, entry)
		if len(out) == domain.MaxHistoryEntries {
			break
		}
	}
	return out
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
