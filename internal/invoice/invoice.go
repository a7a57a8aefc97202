package invoice

// Document is the envelope every extraction result is wrapped in.
// The "invoice" key marks the document type so callers can check for it
// before walking the record.
type Document struct {
	Invoice Record `json:"invoice"`
}

// Record holds the structured data extracted from one invoice.
// No field is omitted on serialization: missing values are empty strings or zero.
type Record struct {
	Header         Header         `json:"header"`
	BillingParties BillingParties `json:"billing_parties"`
	LineItems      []LineItem     `json:"line_items"`
	Totals         Totals         `json:"totals"`
	PaymentInfo    PaymentInfo    `json:"payment_info"`
}

// Header contains the invoice identification fields
type Header struct {
	InvoiceNumber  string `json:"invoice_number"`
	InvoiceDate    string `json:"invoice_date"` // free-form, not guaranteed parseable
	DueDate        string `json:"due_date"`
	IssuingCompany string `json:"issuing_company"`
	Currency       string `json:"currency"` // ISO code or symbol, unvalidated
}

// BillingParties contains the buyer and the seller
type BillingParties struct {
	BillTo   BillTo   `json:"bill_to"`
	BillFrom BillFrom `json:"bill_from"`
}

// BillTo is the invoiced party
type BillTo struct {
	CompanyName        string `json:"company_name"`
	Address            string `json:"address"`
	OrganizationNumber string `json:"organization_number"`
	VATNumber          string `json:"vat_number"`
}

// BillFrom is the issuing party
type BillFrom struct {
	CompanyName        string `json:"company_name"`
	Address            string `json:"address"`
	OrganizationNumber string `json:"organization_number"`
	VATNumber          string `json:"vat_number"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	Reference          string `json:"reference"`
}

// LineItem is one row of the invoice body, in presentation order.
// Percentages and rates are decimal fractions (0.05 for 5%).
type LineItem struct {
	LineNumber         int     `json:"line_number"`
	Description        string  `json:"description"`
	Quantity           float64 `json:"quantity"`
	UnitOfMeasure      string  `json:"unit_of_measure"`
	UnitPrice          float64 `json:"unit_price"`
	DiscountPercentage float64 `json:"discount_percentage"`
	LineTotal          float64 `json:"line_total"`
	VATRate            float64 `json:"vat_rate"`
	VATAmount          float64 `json:"vat_amount"`
}

// Totals are taken as extracted; no arithmetic consistency between them is enforced.
type Totals struct {
	Subtotal      float64 `json:"subtotal"`
	TotalDiscount float64 `json:"total_discount"`
	TotalVAT      float64 `json:"total_vat"`
	TotalAmount   float64 `json:"total_amount"`
	AmountPaid    float64 `json:"amount_paid"`
	BalanceDue    float64 `json:"balance_due"`
}

// PaymentInfo contains bank details, all unvalidated free text
type PaymentInfo struct {
	BankName         string `json:"bank_name"`
	IBAN             string `json:"iban"`
	SwiftBIC         string `json:"swift_bic"`
	PaymentReference string `json:"payment_reference"`
}

// Item is one input of a batch: an identifier (usually the source filename)
// and the raw image bytes.
type Item struct {
	ID          string
	Data        []byte
	ContentType string
}

// StoreEntry pairs a stored document with its identifier
type StoreEntry struct {
	ID       string   `json:"id"`
	Document Document `json:"document"`
}

// normalize makes sure the line item slice serializes as [] rather than null
func (d *Document) normalize() {
	if d.Invoice.LineItems == nil {
		d.Invoice.LineItems = []LineItem{}
	}
}

// clone returns a copy that shares no mutable state with d
func (d Document) clone() Document {
	c := d
	c.Invoice.LineItems = make([]LineItem, len(d.Invoice.LineItems))
	copy(c.Invoice.LineItems, d.Invoice.LineItems)
	return c
}

// Outstanding reports whether the invoice still has a positive balance due
func (r Record) Outstanding() bool {
	return r.Totals.BalanceDue > 0
}
