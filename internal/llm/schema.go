package llm

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// billSchema accepts numbers either as JSON numbers or as strings, since
// models often echo the bill's "254,0" formatting.
const billSchema = `{
  "type": "object",
  "properties": {
    "provider":        {"type": ["string", "null"]},
    "customer_name":   {"type": ["string", "null"]},
    "address":         {"type": ["string", "null"]},
    "city":            {"type": ["string", "null"]},
    "state":           {"type": ["string", "null"]},
    "customer_id":     {"type": ["string", "number", "null"]},
    "tariff":          {"type": ["string", "number", "null"]},
    "consumption_kwh": {"type": ["string", "number", "null"]},
    "billing_period":  {"type": ["string", "null"]},
    "due_date":        {"type": ["string", "null"]},
    "consumption_history": {
      "type": ["array", "null"],
      "items": {"type": ["object", "string", "number", "null"]}
    }
  }
}`

var compiledBillSchema = jsonschema.MustCompileString("bill.json", billSchema)
