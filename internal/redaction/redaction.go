// Package redaction implements the text substitution policy applied to
// extracted PDF text. Rules are applied strictly in order, each one over the
// output of the previous one.
package redaction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule defines a set of patterns sharing one replacement and matching mode.
type Rule struct {
	Patterns        []string `json:"patterns"`
	Replacement     string   `json:"replacement"`
	Regex           bool     `json:"regex,omitempty"`
	CaseInsensitive bool     `json:"caseInsensitive,omitempty"`
}

// NewRule returns a single-pattern rule.
func NewRule(pattern, replacement string, regex, caseInsensitive bool) Rule {
	return Rule{
		Patterns:        []string{pattern},
		Replacement:     replacement,
		Regex:           regex,
		CaseInsensitive: caseInsensitive,
	}
}

// Mode describes the matching mode of the rule for display.
func (r Rule) Mode() string {
	mode := "literal"
	if r.Regex {
		mode = "regex"
	}
	if r.CaseInsensitive {
		mode += ", case-insensitive"
	}
	return mode
}

// PatternError reports a pattern that cannot be used for matching.
type PatternError struct {
	Rule    int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("rule %d: invalid pattern %q: %v", e.Rule, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// ErrEmptyPattern is returned for literal patterns with no characters.
var ErrEmptyPattern = errors.New("empty literal pattern")

// ErrNoPatterns is returned for rules without any pattern.
var ErrNoPatterns = errors.New("rule has no patterns")

// compiledPattern holds one ready-to-apply pattern pass.
type compiledPattern struct {
	literal         string
	regex           *regexp.Regexp
	replacement     string
	caseInsensitive bool
}

func (p compiledPattern) apply(text string) string {
	switch {
	case p.regex != nil:
		return p.regex.ReplaceAllString(text, p.replacement)
	case p.caseInsensitive:
		return replaceFold(text, p.literal, p.replacement)
	default:
		return strings.ReplaceAll(text, p.literal, p.replacement)
	}
}

// Redactor applies a fixed, ordered rule list. It holds no mutable state and
// is safe for concurrent use.
type Redactor struct {
	rules  []Rule
	passes []compiledPattern
}

// Compile validates and compiles rules in order. The first unusable pattern
// is reported as a *PatternError.
func Compile(rules []Rule) (*Redactor, error) {
	r := &Redactor{
		rules:  make([]Rule, len(rules)),
		passes: make([]compiledPattern, 0, len(rules)),
	}
	copy(r.rules, rules)

	for i, rule := range rules {
		if len(rule.Patterns) == 0 {
			return nil, &PatternError{Rule: i, Err: ErrNoPatterns}
		}
		for _, pattern := range rule.Patterns {
			pass, err := compilePattern(pattern, rule)
			if err != nil {
				return nil, &PatternError{Rule: i, Pattern: pattern, Err: err}
			}
			r.passes = append(r.passes, pass)
		}
	}

	return r, nil
}

func compilePattern(pattern string, rule Rule) (compiledPattern, error) {
	pass := compiledPattern{
		literal:         pattern,
		replacement:     rule.Replacement,
		caseInsensitive: rule.CaseInsensitive,
	}
	if !rule.Regex {
		if pattern == "" {
			return pass, ErrEmptyPattern
		}
		return pass, nil
	}

	expr := pattern
	if rule.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return pass, err
	}
	pass.regex = re
	return pass, nil
}

// Apply runs every pattern of every rule over text, in order.
func (r *Redactor) Apply(text string) string {
	result := text
	for _, pass := range r.passes {
		result = pass.apply(result)
	}
	return result
}

// Redact applies the rules and reports whether the text changed.
func (r *Redactor) Redact(text string) (string, bool) {
	result := r.Apply(text)
	return result, result != text
}

// Rules returns a copy of the rule list.
func (r *Redactor) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of rules.
func (r *Redactor) Len() int {
	return len(r.rules)
}

// Apply compiles rules and applies them to text in one step.
func Apply(rules []Rule, text string) (string, error) {
	r, err := Compile(rules)
	if err != nil {
		return "", err
	}
	return r.Apply(text), nil
}

// Replace applies a single pattern of rule to text.
func Replace(text, pattern string, rule Rule) (string, error) {
	pass, err := compilePattern(pattern, rule)
	if err != nil {
		return "", &PatternError{Pattern: pattern, Err: err}
	}
	return pass.apply(text), nil
}

// replaceFold replaces every non-overlapping occurrence of pattern in text,
// comparing with Unicode case folding. Candidate spans have the byte length of
// pattern, and the original span is what gets replaced.
func replaceFold(text, pattern, replacement string) string {
	n := len(pattern)
	if n == 0 || len(text) < n {
		return text
	}

	var b strings.Builder
	last := 0
	i := 0
	for i+n <= len(text) {
		if strings.EqualFold(text[i:i+n], pattern) {
			b.WriteString(text[last:i])
			b.WriteString(replacement)
			i += n
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}
