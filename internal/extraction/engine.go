package extraction

import "context"

// Well-known document types the engine can recognize.
const (
	TypeW2            = "w2"
	TypeForm1099      = "form_1099"
	TypeBankStatement = "bank_statement"
	TypeInvoice       = "invoice"
	TypeReceipt       = "receipt"
	TypeUnknown       = "unknown"
)

// Result is structured output from the extraction engine.
type Result struct {
	DocumentType string
	Fields       map[string]string
	Confidence   float64
	Raw          string
}

// Validation reports whether an extraction satisfies the type-specific
// required-field rules.
type Validation struct {
	OK      bool
	Reasons []string
}

// Engine is the external OCR/data-extraction collaborator.
type Engine interface {
	DetectType(ctx context.Context, data []byte, mimeType string) (string, error)
	Extract(ctx context.Context, data []byte, mimeType, typeGuess string) (Result, error)
	Validate(ctx context.Context, result Result) (Validation, error)
}
