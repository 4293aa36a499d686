package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"pdf-redactor/internal/redaction"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read into Settings.
const EnvPrefix = "PDF_REDACTOR"

// Settings holds tool-level settings that are not part of a rules document.
type Settings struct {
	// ConfigPath is the rules document used when --config is not given.
	ConfigPath string
	LogLevel   string
	Workers    int
}

// LoadSettings resolves settings from defaults and PDF_REDACTOR_* variables.
// The default rules document is only used when it exists.
func LoadSettings() Settings {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("config", "")

	s := Settings{
		ConfigPath: v.GetString("config"),
		LogLevel:   v.GetString("log_level"),
		Workers:    v.GetInt("workers"),
	}
	if s.Workers < 1 {
		s.Workers = 1
	}

	if s.ConfigPath == "" {
		if path, err := DefaultRulesPath(); err == nil {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				s.ConfigPath = path
			}
		}
	}
	return s
}

// DefaultRulesPath returns ~/.config/pdf-redactor/rules.json.
func DefaultRulesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdf-redactor", "rules.json"), nil
}

type fileRule struct {
	Find            any    `json:"find"`
	Replace         string `json:"replace"`
	Regex           bool   `json:"regex,omitempty"`
	CaseInsensitive bool   `json:"caseInsensitive,omitempty"`
}

type configFile struct {
	Replacements []fileRule  `json:"replacements"`
	Compression  Compression `json:"compression"`
}

// SampleRuleSet returns the rules written by "config init".
func SampleRuleSet() RuleSet {
	return RuleSet{
		Rules: []redaction.Rule{
			{Patterns: []string{"John Doe", "Jane Smith"}, Replacement: "[NAME REDACTED]"},
			redaction.NewRule(`\d{3}-\d{2}-\d{4}`, "XXX-XX-XXXX", true, false),
			redaction.NewRule("confidential", "[REDACTED]", false, true),
		},
		Compression: DefaultCompression(),
	}
}

// SaveRules writes rs as a JSON rules document. Rules with several patterns
// are written with a list-valued find field.
func SaveRules(path string, rs RuleSet) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	fileCfg := configFile{
		Replacements: make([]fileRule, 0, len(rs.Rules)),
		Compression:  rs.Compression,
	}
	for _, r := range rs.Rules {
		var find any = r.Patterns
		if len(r.Patterns) == 1 {
			find = r.Patterns[0]
		}
		fileCfg.Replacements = append(fileCfg.Replacements, fileRule{
			Find:            find,
			Replace:         r.Replacement,
			Regex:           r.Regex,
			CaseInsensitive: r.CaseInsensitive,
		})
	}

	data, err := json.MarshalIndent(fileCfg, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
