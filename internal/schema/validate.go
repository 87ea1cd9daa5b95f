package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult reports the outcome of a single check. Error is empty when
// Valid is true.
type ValidationResult struct {
	Valid bool
	Error string
}

func ok() ValidationResult { return ValidationResult{Valid: true} }

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// icd10Pattern matches a letter, two digits, and an optional dotted
// subcategory of 1-4 alphanumerics (J18, J18.9, S06.0X0A).
var icd10Pattern = regexp.MustCompile(`^[A-Z][0-9]{2}(\.[0-9A-Z]{1,4})?$`)

// ICD10Validator checks diagnosis code format and, when a catalog is loaded,
// existence.
type ICD10Validator struct {
	catalog map[string]ICD10Code
}

func NewICD10Validator(catalog map[string]ICD10Code) *ICD10Validator {
	return &ICD10Validator{catalog: catalog}
}

func (v *ICD10Validator) ValidateFormat(code string) ValidationResult {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !icd10Pattern.MatchString(code) {
		return fail("invalid ICD-10 format: %s (expected A00 or A00.0)", code)
	}
	return ok()
}

func (v *ICD10Validator) ValidateExists(code string) ValidationResult {
	code = strings.ToUpper(strings.TrimSpace(code))
	if res := v.ValidateFormat(code); !res.Valid {
		return res
	}
	if len(v.catalog) == 0 {
		// No catalog loaded; format validation is all we can do.
		return ok()
	}
	if _, found := v.catalog[code]; !found {
		return fail("ICD-10 code not found in catalog: %s", code)
	}
	return ok()
}

// FieldWhitelistValidator checks target fields against a workflow's allowed
// set. Matching is case-insensitive. An empty whitelist allows everything.
type FieldWhitelistValidator struct {
	allowed map[string]bool
}

func NewFieldWhitelistValidator(allowedFields []string) *FieldWhitelistValidator {
	allowed := make(map[string]bool, len(allowedFields))
	for _, f := range allowedFields {
		allowed[strings.ToLower(f)] = true
	}
	return &FieldWhitelistValidator{allowed: allowed}
}

func (v *FieldWhitelistValidator) Validate(field string) ValidationResult {
	if len(v.allowed) == 0 {
		return ok()
	}
	if !v.allowed[strings.ToLower(field)] {
		return fail("field '%s' is not in whitelist", field)
	}
	return ok()
}

// ValidateTextLength bounds input text. Zero bounds are unenforced.
func ValidateTextLength(text string, minLen, maxLen int) ValidationResult {
	n := len(text)
	if minLen > 0 && n < minLen {
		return fail("text too short: %d chars (min: %d)", n, minLen)
	}
	if maxLen > 0 && n > maxLen {
		return fail("text too long: %d chars (max: %d)", n, maxLen)
	}
	return ok()
}

// ValidateRequiredFields checks that every named field is present and
// non-nil in the extracted data.
func ValidateRequiredFields(data map[string]any, required []string) ValidationResult {
	var missing []string
	for _, f := range required {
		if v, found := data[f]; !found || v == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fail("missing required fields: %s", strings.Join(missing, ", "))
	}
	return ok()
}

// ValidateResponseSize caps content size in bytes.
func ValidateResponseSize(content string, maxSize int) ValidationResult {
	if maxSize <= 0 {
		maxSize = 100_000
	}
	if len(content) > maxSize {
		return fail("response too large: %d bytes (max: %d)", len(content), maxSize)
	}
	return ok()
}

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

// ValidateNoScriptInjection rejects content carrying script-tag or inline
// handler patterns before it is handed to the agent for insertion.
func ValidateNoScriptInjection(text string) ValidationResult {
	for _, p := range scriptPatterns {
		if p.MatchString(text) {
			return fail("potential script injection detected")
		}
	}
	return ok()
}

// NormalizeHotkey canonicalizes a hotkey combination for matching: uppercase
// with all whitespace removed, so "ctrl + alt + v" and "CTRL+ALT+V" resolve
// to the same workflow.
func NormalizeHotkey(hotkey string) string {
	return strings.ToUpper(strings.Join(strings.Fields(hotkey), ""))
}
