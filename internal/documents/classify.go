package documents

import (
	"regexp"
	"strings"
)

// Document categories produced by the classifier.
const (
	CategoryTaxReturn     = "tax_return"
	CategoryBankStatement = "bank_statement"
	CategoryInvoice       = "invoice"
	CategoryReceipt       = "receipt"
	CategoryOther         = "other"
)

// A standalone four-digit year; \b alone misses underscore-delimited
// names like w2_2023.pdf because underscore is a word character.
var classifierYearPattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

// Filename token rules checked in order; first match wins.
var classifierRules = []struct {
	tokens      []string
	category    string
	subcategory string
}{
	{[]string{"w2", "w-2"}, CategoryTaxReturn, "w2"},
	{[]string{"1099-int", "1099int"}, CategoryTaxReturn, "1099_int"},
	{[]string{"1099-div", "1099div"}, CategoryTaxReturn, "1099_div"},
	{[]string{"1099"}, CategoryTaxReturn, "1099"},
	{[]string{"1098"}, CategoryTaxReturn, "1098"},
	{[]string{"k1", "k-1"}, CategoryTaxReturn, "k1"},
	{[]string{"tax_return", "tax-return", "1040"}, CategoryTaxReturn, ""},
	{[]string{"bank", "statement"}, CategoryBankStatement, ""},
	{[]string{"invoice", "inv_"}, CategoryInvoice, ""},
	{[]string{"receipt", "rcpt"}, CategoryReceipt, ""},
}

// Classify derives a category, subcategory, and year from filename
// heuristics. It is best-effort, not authoritative: an explicit caller
// category always takes precedence over this guess.
func Classify(fileName string) Classification {
	lower := strings.ToLower(fileName)

	out := Classification{Category: CategoryOther}
	for _, rule := range classifierRules {
		if containsAny(lower, rule.tokens) {
			out.Category = rule.category
			out.Subcategory = rule.subcategory
			break
		}
	}

	if m := classifierYearPattern.FindStringSubmatch(lower); m != nil {
		year := 0
		for _, ch := range m[1] {
			year = year*10 + int(ch-'0')
		}
		out.Year = &year
	}

	return out
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
