package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"clientdocs-backend/internal/extraction"
)

// Engine is a self-hosted extraction engine for dev deployments and
// tests. It reads PDF text via github.com/ledongthuc/pdf and treats CSV
// and plain text as-is; token and amount heuristics stand in for a
// hosted OCR service, so confidence is derived from how many required
// fields the heuristics actually filled.
type Engine struct{}

// New constructs a local Engine.
func New() *Engine {
	return &Engine{}
}

var typeTokens = []struct {
	docType string
	tokens  []string
}{
	{extraction.TypeW2, []string{"w-2", "wage and tax statement", "wages, tips"}},
	{extraction.TypeForm1099, []string{"1099-int", "1099-div", "1099-misc", "1099-nec", "form 1099"}},
	{extraction.TypeBankStatement, []string{"account summary", "beginning balance", "ending balance", "statement period"}},
	{extraction.TypeInvoice, []string{"invoice number", "invoice #", "amount due", "bill to"}},
	{extraction.TypeReceipt, []string{"receipt", "subtotal", "total paid", "change due"}},
}

var (
	einPattern    = regexp.MustCompile(`\b\d{2}-\d{7}\b`)
	ssnPattern    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	amountPattern = regexp.MustCompile(`\$?\s?\d{1,3}(?:,\d{3})*\.\d{2}\b`)
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// DetectType reads the document text and matches it against known
// document-type token sets.
func (e *Engine) DetectType(ctx context.Context, data []byte, mimeType string) (string, error) {
	text, err := readText(ctx, data, mimeType)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(text)
	for _, entry := range typeTokens {
		for _, token := range entry.tokens {
			if strings.Contains(lower, token) {
				return entry.docType, nil
			}
		}
	}
	return extraction.TypeUnknown, nil
}

// Extract pulls structured fields from the document text for the guessed type.
func (e *Engine) Extract(ctx context.Context, data []byte, mimeType, typeGuess string) (extraction.Result, error) {
	text, err := readText(ctx, data, mimeType)
	if err != nil {
		return extraction.Result{}, err
	}

	fields := make(map[string]string)
	if ein := einPattern.FindString(text); ein != "" {
		fields["employer_ein"] = ein
	}
	if ssn := ssnPattern.FindString(text); ssn != "" {
		fields["taxpayer_ssn"] = ssn
	}
	if year := yearPattern.FindString(text); year != "" {
		fields["tax_year"] = year
	}
	amounts := amountPattern.FindAllString(text, 8)
	for i, amount := range amounts {
		fields[fmt.Sprintf("amount_%d", i+1)] = strings.TrimSpace(amount)
	}

	result := extraction.Result{
		DocumentType: typeGuess,
		Fields:       fields,
		Confidence:   scoreConfidence(typeGuess, fields),
		Raw:          text,
	}
	return result, nil
}

// Validate checks the type-specific required fields.
func (e *Engine) Validate(ctx context.Context, result extraction.Result) (extraction.Validation, error) {
	if err := ctx.Err(); err != nil {
		return extraction.Validation{}, err
	}

	var reasons []string
	for _, field := range requiredFields(result.DocumentType) {
		if result.Fields[field] == "" {
			reasons = append(reasons, "missing required field: "+field)
		}
	}
	return extraction.Validation{OK: len(reasons) == 0, Reasons: reasons}, nil
}

func requiredFields(docType string) []string {
	switch docType {
	case extraction.TypeW2:
		return []string{"employer_ein", "tax_year", "amount_1"}
	case extraction.TypeForm1099:
		return []string{"tax_year", "amount_1"}
	case extraction.TypeInvoice, extraction.TypeReceipt:
		return []string{"amount_1"}
	default:
		return nil
	}
}

func scoreConfidence(docType string, fields map[string]string) float64 {
	required := requiredFields(docType)
	if len(required) == 0 {
		if len(fields) == 0 {
			return 0.3
		}
		return 0.6
	}
	found := 0
	for _, field := range required {
		if fields[field] != "" {
			found++
		}
	}
	// Base confidence for a recognized type, raised per required field found.
	score := 0.5 + 0.45*float64(found)/float64(len(required))
	if score > 1 {
		score = 1
	}
	return score
}

func readText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case "application/pdf":
		return readPDF(data)
	case "text/csv", "text/plain":
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported mime type: %s", clean)
	}
}

func readPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var _ extraction.Engine = (*Engine)(nil)
