package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"pdf-redactor/internal/redaction"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCompressionLevel = 9
	MaxCompressionLevel     = 9
)

// Format identifies the syntax of a rules document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a format by file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Compression is the output compression policy.
type Compression struct {
	Preserve bool `json:"preserve" yaml:"preserve" toml:"preserve"`
	Level    int  `json:"level" yaml:"level" toml:"level"`
}

// DefaultCompression returns the policy used when a document has none.
func DefaultCompression() Compression {
	return Compression{Preserve: true, Level: DefaultCompressionLevel}
}

// RuleSet is a normalized rules document.
type RuleSet struct {
	Rules       []redaction.Rule
	Compression Compression
}

// ConfigError reports a problem in a rules document. Entry is the index of
// the offending replacement entry, or -1 for document-level problems.
type ConfigError struct {
	Path  string
	Entry int
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if e.Entry >= 0 {
		fmt.Fprintf(&b, "replacements[%d]", e.Entry)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	} else if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingField = errors.New("required field is missing")
	ErrWrongType    = errors.New("wrong type")
	ErrEmptyFind    = errors.New("find list must not be empty")
	ErrLevelRange   = fmt.Errorf("level must be between 0 and %d", MaxCompressionLevel)
)

// Find is the raw "find" value of a replacement entry: either one pattern or
// a list of patterns. It does not leave this package; ParseRules flattens it.
type Find struct {
	Single string
	Many   []string
	IsList bool
}

// Patterns returns the patterns in document order.
func (f Find) Patterns() []string {
	if f.IsList {
		return f.Many
	}
	return []string{f.Single}
}

// LoadRules reads and parses a rules document from path.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, &ConfigError{Path: path, Entry: -1, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	rs, err := ParseRules(data, FormatFromPath(path))
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return RuleSet{}, err
	}
	return rs, nil
}

// ParseRules parses a rules document. Entries whose find field is a list
// expand to one rule per pattern, in order.
func ParseRules(data []byte, format Format) (RuleSet, error) {
	doc, err := decode(data, format)
	if err != nil {
		return RuleSet{}, &ConfigError{Entry: -1, Err: err}
	}

	rs := RuleSet{Compression: DefaultCompression()}
	if doc == nil {
		return rs, nil
	}

	root, ok := asMap(doc)
	if !ok {
		return RuleSet{}, &ConfigError{Entry: -1, Err: fmt.Errorf("%w: document must be a mapping", ErrWrongType)}
	}

	if raw, found := root["replacements"]; found && raw != nil {
		entries, ok := asList(raw)
		if !ok {
			return RuleSet{}, &ConfigError{Entry: -1, Field: "replacements", Err: fmt.Errorf("%w: expected a list", ErrWrongType)}
		}
		for i, rawEntry := range entries {
			rules, err := parseEntry(i, rawEntry)
			if err != nil {
				return RuleSet{}, err
			}
			rs.Rules = append(rs.Rules, rules...)
		}
	}

	if raw, found := root["compression"]; found && raw != nil {
		c, err := parseCompression(raw)
		if err != nil {
			return RuleSet{}, err
		}
		rs.Compression = c
	}

	return rs, nil
}

func decode(data []byte, format Format) (any, error) {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		doc = m
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		if dec.More() {
			return nil, errors.New("failed to parse JSON: trailing data after document")
		}
	}
	return doc, nil
}

func parseEntry(i int, raw any) ([]redaction.Rule, error) {
	entry, ok := asMap(raw)
	if !ok {
		return nil, &ConfigError{Entry: i, Err: fmt.Errorf("%w: entry must be a mapping", ErrWrongType)}
	}

	find, err := parseFind(entry)
	if err != nil {
		return nil, &ConfigError{Entry: i, Field: "find", Err: err}
	}

	rawReplace, found := entry["replace"]
	if !found || rawReplace == nil {
		return nil, &ConfigError{Entry: i, Field: "replace", Err: ErrMissingField}
	}
	replace, ok := rawReplace.(string)
	if !ok {
		return nil, &ConfigError{Entry: i, Field: "replace", Err: fmt.Errorf("%w: expected a string, got %s", ErrWrongType, typeName(rawReplace))}
	}

	regex, err := optionalBool(entry, "regex")
	if err != nil {
		return nil, &ConfigError{Entry: i, Field: "regex", Err: err}
	}
	caseInsensitive, err := optionalBool(entry, "caseInsensitive")
	if err != nil {
		return nil, &ConfigError{Entry: i, Field: "caseInsensitive", Err: err}
	}

	patterns := find.Patterns()
	rules := make([]redaction.Rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, redaction.NewRule(p, replace, regex, caseInsensitive))
	}
	return rules, nil
}

func parseFind(entry map[string]any) (Find, error) {
	raw, found := entry["find"]
	if !found || raw == nil {
		return Find{}, ErrMissingField
	}

	if s, ok := raw.(string); ok {
		return Find{Single: s}, nil
	}

	items, ok := asList(raw)
	if !ok {
		return Find{}, fmt.Errorf("%w: expected a string or a list of strings, got %s", ErrWrongType, typeName(raw))
	}
	if len(items) == 0 {
		return Find{}, ErrEmptyFind
	}
	many := make([]string, 0, len(items))
	for j, item := range items {
		s, ok := item.(string)
		if !ok {
			return Find{}, fmt.Errorf("%w: element %d must be a string, got %s", ErrWrongType, j, typeName(item))
		}
		many = append(many, s)
	}
	return Find{Many: many, IsList: true}, nil
}

func parseCompression(raw any) (Compression, error) {
	m, ok := asMap(raw)
	if !ok {
		return Compression{}, &ConfigError{Entry: -1, Field: "compression", Err: fmt.Errorf("%w: expected a mapping", ErrWrongType)}
	}

	c := DefaultCompression()
	if v, found := m["preserve"]; found && v != nil {
		b, ok := v.(bool)
		if !ok {
			return Compression{}, &ConfigError{Entry: -1, Field: "compression.preserve", Err: fmt.Errorf("%w: expected a boolean, got %s", ErrWrongType, typeName(v))}
		}
		c.Preserve = b
	}
	if v, found := m["level"]; found && v != nil {
		level, ok := asInt(v)
		if !ok {
			return Compression{}, &ConfigError{Entry: -1, Field: "compression.level", Err: fmt.Errorf("%w: expected an integer, got %s", ErrWrongType, typeName(v))}
		}
		if level < 0 || level > MaxCompressionLevel {
			return Compression{}, &ConfigError{Entry: -1, Field: "compression.level", Err: ErrLevelRange}
		}
		c.Level = level
	}
	return c, nil
}

func optionalBool(entry map[string]any, key string) (bool, error) {
	v, found := entry[key]
	if !found || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected a boolean, got %s", ErrWrongType, typeName(v))
	}
	return b, nil
}

// asMap accepts the mapping shapes produced by the JSON, YAML and TOML decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// asList accepts generic lists and TOML arrays of tables.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64, float64, json.Number:
		return "number"
	case []any, []map[string]any, []string:
		return "list"
	case map[string]any, map[any]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
