package schema

import "testing"

func TestICD10ValidateFormat(t *testing.T) {
	v := NewICD10Validator(nil)

	cases := []struct {
		code  string
		valid bool
	}{
		{"J18.9", true},
		{"I10", true},
		{"E11.65", true},
		{"S06.0X0A", true},
		{"j18.9", true}, // normalized to uppercase
		{"XYZ", false},
		{"123", false},
		{"A", false},
		{"", false},
	}
	for _, tc := range cases {
		res := v.ValidateFormat(tc.code)
		if res.Valid != tc.valid {
			t.Errorf("ValidateFormat(%q) = %v, want %v (%s)", tc.code, res.Valid, tc.valid, res.Error)
		}
	}
}

func TestICD10ValidateExists(t *testing.T) {
	catalog := map[string]ICD10Code{
		"J18.9": {Code: "J18.9", Label: "Pneumonia, unspecified"},
	}
	v := NewICD10Validator(catalog)

	if res := v.ValidateExists("J18.9"); !res.Valid {
		t.Fatalf("expected J18.9 to exist: %s", res.Error)
	}
	if res := v.ValidateExists("A00"); res.Valid {
		t.Fatal("expected A00 to be rejected against catalog")
	}

	// Empty catalog falls back to format-only validation.
	empty := NewICD10Validator(nil)
	if res := empty.ValidateExists("A00"); !res.Valid {
		t.Fatalf("format-valid code should pass without catalog: %s", res.Error)
	}
}

func TestFieldWhitelist(t *testing.T) {
	v := NewFieldWhitelistValidator([]string{"DiagnosisText", "DiagnosisCode"})

	if res := v.Validate("DiagnosisText"); !res.Valid {
		t.Fatalf("whitelisted field rejected: %s", res.Error)
	}
	if res := v.Validate("diagnosiscode"); !res.Valid {
		t.Fatal("whitelist match should be case-insensitive")
	}
	if res := v.Validate("SocialSecurityNumber"); res.Valid {
		t.Fatal("expected non-whitelisted field to be rejected")
	}

	// Empty whitelist allows everything.
	open := NewFieldWhitelistValidator(nil)
	if res := open.Validate("Anything"); !res.Valid {
		t.Fatal("empty whitelist should allow all fields")
	}
}

func TestValidateTextLength(t *testing.T) {
	if res := ValidateTextLength("Hi", 10, 0); res.Valid {
		t.Fatal("expected short text to fail")
	}
	if res := ValidateTextLength("Patient presents with symptoms", 10, 1000); !res.Valid {
		t.Fatalf("expected text in bounds to pass: %s", res.Error)
	}
	long := make([]byte, 10_000)
	if res := ValidateTextLength(string(long), 0, 5000); res.Valid {
		t.Fatal("expected long text to fail")
	}
	if res := ValidateTextLength("", 0, 0); !res.Valid {
		t.Fatal("unbounded validation should pass")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	data := map[string]any{"summary": "Pneumonia", "confidence": 0.9, "null_field": nil}

	if res := ValidateRequiredFields(data, []string{"summary", "confidence"}); !res.Valid {
		t.Fatalf("expected present fields to pass: %s", res.Error)
	}
	if res := ValidateRequiredFields(data, []string{"summary", "icd10_code"}); res.Valid {
		t.Fatal("expected missing field to fail")
	}
	if res := ValidateRequiredFields(data, []string{"null_field"}); res.Valid {
		t.Fatal("nil extraction counts as missing")
	}
}

func TestValidateNoScriptInjection(t *testing.T) {
	cases := []struct {
		text  string
		valid bool
	}{
		{"Pneumonia with respiratory symptoms", true},
		{"<script>alert(1)</script>", false},
		{"javascript:void(0)", false},
		{"<img onload=steal()>", false},
	}
	for _, tc := range cases {
		if res := ValidateNoScriptInjection(tc.text); res.Valid != tc.valid {
			t.Errorf("ValidateNoScriptInjection(%q) = %v, want %v", tc.text, res.Valid, tc.valid)
		}
	}
}

func TestNormalizeHotkey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"CTRL+ALT+V", "CTRL+ALT+V"},
		{"ctrl+alt+v", "CTRL+ALT+V"},
		{"Ctrl + Alt + V", "CTRL+ALT+V"},
		{"  ctrl+ALT+v  ", "CTRL+ALT+V"},
	}
	for _, tc := range cases {
		if got := NormalizeHotkey(tc.in); got != tc.want {
			t.Errorf("NormalizeHotkey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	// Idempotence.
	if NormalizeHotkey(NormalizeHotkey("ctrl + alt + v")) != NormalizeHotkey("ctrl + alt + v") {
		t.Fatal("normalization should be idempotent")
	}
}
