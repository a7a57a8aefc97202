package scanning

import (
	"fmt"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// parseResponse parses the text returned by a provider
func parseResponse(text string) (*invoice.Document, error) {
	doc, err := invoice.ParseJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parsing invoice data: %w", err)
	}
	return doc, nil
}
