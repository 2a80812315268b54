package llm

// systemPrompt pins the model to a single JSON object with the bill fields.
const systemPrompt = `You extract data from Brazilian electricity bills (contas de energia).
Return ONLY one JSON object, with no markdown, no code fences and no explanation.

Use exactly these keys:
{
  "provider": "",
  "customer_name": "",
  "address": "",
  "city": "",
  "state": "",
  "customer_id": "",
  "tariff": 0,
  "consumption_kwh": 0,
  "billing_period": "",
  "due_date": "",
  "consumption_history": [
    {"month": "", "consumption_kwh": 0, "year": 0}
  ]
}

Rules:
- "customer_name" and "address" belong to the CUSTOMER, never to the utility company. Ignore the issuer's name, CNPJ, inscrição estadual and headquarters address.
- "customer_id" is the installation number (número da instalação), 10 digits, digits only.
- "tariff" is the price per kWh in R$, as a number between 0.3 and 3.0.
- "consumption_kwh" is the billed consumption of the current period in kWh.
- "state" is the two-letter UF code.
- "consumption_history" lists up to 12 months from the consumption chart. Use the full Portuguese month name in lowercase (janeiro, fevereiro, março, ...) and a four-digit year when shown.
- Dates use DD/MM/YYYY. The billing period uses the format printed on the bill (e.g. MAR/2024).
- If a field is not present, use "" for text and 0 for numbers.`

const textUserPrompt = "Extract the bill data from this OCR text:\n\n"

const imageUserPrompt = "Extract the bill data from this bill image."
