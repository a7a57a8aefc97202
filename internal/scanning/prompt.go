package scanning

import (
	"fmt"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// invoiceExtractionPrompt is the shared instruction sent with every image
var invoiceExtractionPrompt = buildPrompt()

const promptTemplate = `Extract all invoice data from this image and return it in the following JSON structure. Be precise with numbers and dates. If information is not available, use an empty string for text fields and 0 for numbers.

Required JSON structure:
%s

For line_items, each item should have:
- line_number (integer)
- description (string)
- quantity (number)
- unit_of_measure (string)
- unit_price (number)
- discount_percentage (number, as decimal like 0.05 for 5%%)
- line_total (number)
- vat_rate (number, as decimal like 0.20 for 20%%)
- vat_amount (number)

Rules:
- Keep line items in the order they appear on the invoice
- Dates, addresses, identifiers and all other free text are strings, copied as printed
- All amounts are numbers (not strings), without currency symbols or thousands separators
- Percentages and rates are decimal fractions, never whole percentages
- Never leave out a field; use "" or 0 when a value is not on the invoice
- Return ONLY the JSON structure, no additional text`

func buildPrompt() string {
	example, err := invoice.ToJSON(invoice.Document{})
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf(promptTemplate, example)
}
