package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pdf-redactor/internal/redaction"
)

func TestParseRules_SingleAndListFind(t *testing.T) {
	doc := `{
		"replacements": [
			{"find": ["John Doe", "Jane Smith"], "replace": "[NAME REDACTED]"},
			{"find": "confidential", "replace": "[REDACTED]", "caseInsensitive": true},
			{"find": "\\d{3}-\\d{2}-\\d{4}", "replace": "XXX-XX-XXXX", "regex": true}
		]
	}`

	rs, err := ParseRules([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}

	want := []redaction.Rule{
		redaction.NewRule("John Doe", "[NAME REDACTED]", false, false),
		redaction.NewRule("Jane Smith", "[NAME REDACTED]", false, false),
		redaction.NewRule("confidential", "[REDACTED]", false, true),
		redaction.NewRule(`\d{3}-\d{2}-\d{4}`, "XXX-XX-XXXX", true, false),
	}
	if !reflect.DeepEqual(rs.Rules, want) {
		t.Errorf("unexpected rules:\n got %+v\nwant %+v", rs.Rules, want)
	}
	if rs.Compression != DefaultCompression() {
		t.Errorf("expected default compression, got %+v", rs.Compression)
	}
}

func TestParseRules_ExpansionMatchesSeparateEntries(t *testing.T) {
	listDoc := `{"replacements": [{"find": ["John Doe", "Jane Smith"], "replace": "[NAME]"}]}`
	splitDoc := `{"replacements": [
		{"find": "John Doe", "replace": "[NAME]"},
		{"find": "Jane Smith", "replace": "[NAME]"}
	]}`

	list, err := ParseRules([]byte(listDoc), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	split, err := ParseRules([]byte(splitDoc), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}

	text := "John Doe met Jane Smith"
	got1, _ := redaction.Apply(list.Rules, text)
	got2, _ := redaction.Apply(split.Rules, text)
	if got1 != "[NAME] met [NAME]" || got1 != got2 {
		t.Errorf("unexpected results: %q, %q", got1, got2)
	}
}

func TestParseRules_MissingReplacementsIsEmpty(t *testing.T) {
	rs, err := ParseRules([]byte(`{"compression": {"preserve": false, "level": 3}}`), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if len(rs.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(rs.Rules))
	}
	if rs.Compression != (Compression{Preserve: false, Level: 3}) {
		t.Errorf("unexpected compression: %+v", rs.Compression)
	}
}

func TestParseRules_CompressionDefaults(t *testing.T) {
	rs, err := ParseRules([]byte(`{"replacements": [], "compression": {"level": 4}}`), FormatJSON)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if !rs.Compression.Preserve || rs.Compression.Level != 4 {
		t.Errorf("unexpected compression: %+v", rs.Compression)
	}
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		entry int
		field string
		want  error
	}{
		{"empty find list", `{"replacements": [{"find": [], "replace": "x"}]}`, 0, "find", ErrEmptyFind},
		{"numeric find", `{"replacements": [{"find": 42, "replace": "x"}]}`, 0, "find", ErrWrongType},
		{"missing find", `{"replacements": [{"replace": "x"}]}`, 0, "find", ErrMissingField},
		{"non-string element", `{"replacements": [{"find": "ok", "replace": "x"}, {"find": ["a", 1], "replace": "x"}]}`, 1, "find", ErrWrongType},
		{"missing replace", `{"replacements": [{"find": "a", "replace": "b"}, {"find": "x"}]}`, 1, "replace", ErrMissingField},
		{"non-string replace", `{"replacements": [{"find": "a", "replace": 7}]}`, 0, "replace", ErrWrongType},
		{"non-bool regex", `{"replacements": [{"find": "a", "replace": "b", "regex": "yes"}]}`, 0, "regex", ErrWrongType},
		{"non-bool caseInsensitive", `{"replacements": [{"find": "a", "replace": "b", "caseInsensitive": 1}]}`, 0, "caseInsensitive", ErrWrongType},
		{"entry not a mapping", `{"replacements": ["a"]}`, 0, "", ErrWrongType},
		{"replacements not a list", `{"replacements": {"find": "a"}}`, -1, "replacements", ErrWrongType},
		{"level out of range", `{"compression": {"level": 10}}`, -1, "compression.level", ErrLevelRange},
		{"fractional level", `{"compression": {"level": 2.5}}`, -1, "compression.level", ErrWrongType},
		{"non-bool preserve", `{"compression": {"preserve": "no"}}`, -1, "compression.preserve", ErrWrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc), FormatJSON)

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cerr.Entry != tt.entry {
				t.Errorf("expected entry %d, got %d", tt.entry, cerr.Entry)
			}
			if cerr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cerr.Field)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRules_MalformedSyntax(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML, FormatTOML} {
		_, err := ParseRules([]byte("{{{ not valid"), format)

		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: expected *ConfigError, got %v", format, err)
			continue
		}
		if cerr.Entry != -1 {
			t.Errorf("%s: expected document-level error, got entry %d", format, cerr.Entry)
		}
	}
}

func TestParseRules_YAML(t *testing.T) {
	doc := `
replacements:
  - find:
      - John Doe
      - Jane Smith
    replace: "[NAME]"
  - find: '(\d{3})-(\d{2})-(\d{4})'
    replace: XXX-XX-XXXX
    regex: true
compression:
  preserve: false
  level: 6
`
	rs, err := ParseRules([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}
	if len(rs.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rs.Rules))
	}
	if !rs.Rules[2].Regex || rs.Rules[2].Patterns[0] != `(\d{3})-(\d{2})-(\d{4})` {
		t.Errorf("unexpected regex rule: %+v", rs.Rules[2])
	}
	if rs.Compression != (Compression{Preserve: false, Level: 6}) {
		t.Errorf("unexpected compression: %+v", rs.Compression)
	}
}

func TestParseRules_TOML(t *testing.T) {
	doc := `
[[replacements]]
find = ["John Doe", "Jane Smith"]
replace = "[NAME]"

[[replacements]]
find = "confidential"
replace = "[X]"
caseInsensitive = true

[compression]
preserve = true
level = 1
`
	rs, err := ParseRules([]byte(doc), FormatTOML)
	if err != nil {
		t.Fatalf("ParseRules() error: %v", err)
	}

	want := []redaction.Rule{
		redaction.NewRule("John Doe", "[NAME]", false, false),
		redaction.NewRule("Jane Smith", "[NAME]", false, false),
		redaction.NewRule("confidential", "[X]", false, true),
	}
	if !reflect.DeepEqual(rs.Rules, want) {
		t.Errorf("unexpected rules: %+v", rs.Rules)
	}
	if rs.Compression.Level != 1 {
		t.Errorf("unexpected compression: %+v", rs.Compression)
	}
}

func TestParseRules_TOMLMissingReplace(t *testing.T) {
	doc := `
[[replacements]]
find = "a"
`
	_, err := ParseRules([]byte(doc), FormatTOML)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"rules.json": FormatJSON,
		"rules.YML":  FormatYAML,
		"rules.yaml": FormatYAML,
		"rules.toml": FormatTOML,
		"rules":      FormatJSON,
	}
	for path, want := range cases {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadRules_ReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"replacements": [{"find": []}]}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadRules(path)

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if cerr.Path != path {
		t.Errorf("expected path %q, got %q", path, cerr.Path)
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := LoadRules(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cerr.Path != path || cerr.Entry != -1 {
		t.Errorf("unexpected result: path=%q entry=%d", cerr.Path, cerr.Entry)
	}
}

func TestSaveRules_RoundTripsSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")
	sample := SampleRuleSet()

	if err := SaveRules(path, sample); err != nil {
		t.Fatalf("SaveRules() error: %v", err)
	}
	if err := SaveRules(path, sample); err == nil {
		t.Error("expected SaveRules to refuse overwriting")
	}

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	// The two-pattern sample entry expands into two rules.
	if len(rs.Rules) != len(sample.Rules)+1 {
		t.Errorf("expected %d rules, got %d", len(sample.Rules)+1, len(rs.Rules))
	}
	if rs.Compression != sample.Compression {
		t.Errorf("unexpected compression: %+v", rs.Compression)
	}
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PDF_REDACTOR_LOG_LEVEL", "debug")
	t.Setenv("PDF_REDACTOR_WORKERS", "3")
	t.Setenv("PDF_REDACTOR_CONFIG", "/tmp/rules.yaml")

	s := LoadSettings()

	if s.LogLevel != "debug" || s.Workers != 3 || s.ConfigPath != "/tmp/rules.yaml" {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestLoadSettings_DefaultRulesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PDF_REDACTOR_CONFIG", "")

	if s := LoadSettings(); s.ConfigPath != "" {
		t.Errorf("expected no config path, got %q", s.ConfigPath)
	}

	path, err := DefaultRulesPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveRules(path, SampleRuleSet()); err != nil {
		t.Fatal(err)
	}
	if s := LoadSettings(); s.ConfigPath != path {
		t.Errorf("expected %q, got %q", path, s.ConfigPath)
	}
}
