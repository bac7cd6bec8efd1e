package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config is the typed view of the merged settings.
type Config struct {
	Vemod   Vemod
	Logging Logging

	settings map[string]any
}

// Vemod holds the vemod CLI and editor integration settings.
type Vemod struct {
	// Path is the vemod executable, or LookupSentinel to search PATH.
	Path           string
	LookupSentinel string

	// Languages are the supported language identifiers.
	Languages []string

	// Extensions maps file extensions to language identifiers.
	Extensions map[string]string

	TerminalName       string
	ClearTerminal      bool
	TranspileExtension string
	OutputName         string

	Vmdls Vmdls
}

// Vmdls holds the language server settings.
type Vmdls struct {
	Path             string
	LookupSentinel   string
	Args             []string
	AutoRestart      bool
	MaxRestarts      int
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration
	OutputName       string
}

// Logging holds logger settings.
type Logging struct {
	Level string
}

// Setting keys.
const (
	KeyPath               = "vemod.path"
	KeyLookupSentinel     = "vemod.lookupSentinel"
	KeyLanguages          = "vemod.languages"
	KeyExtensions         = "vemod.extensions"
	KeyTerminalName       = "vemod.terminalName"
	KeyClearTerminal      = "vemod.clearTerminal"
	KeyTranspileExtension = "vemod.transpileExtension"
	KeyOutputName         = "vemod.outputName"

	KeyVmdlsPath             = "vemod.vmdls.path"
	KeyVmdlsLookupSentinel   = "vemod.vmdls.lookupSentinel"
	KeyVmdlsArgs             = "vemod.vmdls.args"
	KeyVmdlsAutoRestart      = "vemod.vmdls.autoRestart"
	KeyVmdlsMaxRestarts      = "vemod.vmdls.maxRestarts"
	KeyVmdlsHandshakeTimeout = "vemod.vmdls.handshakeTimeout"
	KeyVmdlsShutdownTimeout  = "vemod.vmdls.shutdownTimeout"
	KeyVmdlsOutputName       = "vemod.vmdls.outputName"

	KeyLogLevel = "logging.level"
)

// Defaults returns the built-in settings tree.
func Defaults() map[string]any {
	return map[string]any{
		"vemod": map[string]any{
			"path":               "vemod",
			"lookupSentinel":     "vemod",
			"languages":          []any{"vemod", "blue"},
			"extensions":         map[string]any{".vmd": "vemod", ".blue": "blue"},
			"terminalName":       "VeMod",
			"clearTerminal":      true,
			"transpileExtension": ".vmd",
			"outputName":         "VeMod",
			"vmdls": map[string]any{
				"path":             "vmdls",
				"lookupSentinel":   "vmdls",
				"args":             []any{},
				"autoRestart":      true,
				"maxRestarts":      int64(4),
				"handshakeTimeout": "10s",
				"shutdownTimeout":  "5s",
				"outputName":       "VeMod Language Server",
			},
		},
		"logging": map[string]any{
			"level": "info",
		},
	}
}

// Default returns the configuration built from Defaults alone.
func Default() *Config {
	cfg, err := FromSettings(Defaults())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// FromSettings decodes a settings tree. Missing keys fall back to their
// defaults; present keys with the wrong type return a *FieldError.
func FromSettings(settings map[string]any) (*Config, error) {
	merged := deepMerge(Defaults(), normalize(settings))
	d := decoder{settings: merged}

	cfg := &Config{
		Vemod: Vemod{
			Path:               d.string(KeyPath),
			LookupSentinel:     d.string(KeyLookupSentinel),
			Languages:          d.strings(KeyLanguages),
			Extensions:         d.stringMap(KeyExtensions),
			TerminalName:       d.string(KeyTerminalName),
			ClearTerminal:      d.bool(KeyClearTerminal),
			TranspileExtension: d.string(KeyTranspileExtension),
			OutputName:         d.string(KeyOutputName),
			Vmdls: Vmdls{
				Path:             d.string(KeyVmdlsPath),
				LookupSentinel:   d.string(KeyVmdlsLookupSentinel),
				Args:             d.strings(KeyVmdlsArgs),
				AutoRestart:      d.bool(KeyVmdlsAutoRestart),
				MaxRestarts:      d.int(KeyVmdlsMaxRestarts),
				HandshakeTimeout: d.duration(KeyVmdlsHandshakeTimeout),
				ShutdownTimeout:  d.duration(KeyVmdlsShutdownTimeout),
				OutputName:       d.string(KeyVmdlsOutputName),
			},
		},
		Logging: Logging{
			Level: d.string(KeyLogLevel),
		},
		settings: merged,
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case len(c.Vemod.Languages) == 0:
		return &FieldError{Key: KeyLanguages, Expected: "at least one language", Value: c.Vemod.Languages}
	case c.Vemod.TerminalName == "":
		return &FieldError{Key: KeyTerminalName, Expected: "non-empty string", Value: c.Vemod.TerminalName}
	case !strings.HasPrefix(c.Vemod.TranspileExtension, ".") || len(c.Vemod.TranspileExtension) < 2:
		return &FieldError{Key: KeyTranspileExtension, Expected: "extension starting with '.'", Value: c.Vemod.TranspileExtension}
	case c.Vemod.Vmdls.MaxRestarts < 0:
		return &FieldError{Key: KeyVmdlsMaxRestarts, Expected: "non-negative integer", Value: c.Vemod.Vmdls.MaxRestarts}
	case c.Vemod.Vmdls.HandshakeTimeout <= 0:
		return &FieldError{Key: KeyVmdlsHandshakeTimeout, Expected: "positive duration", Value: c.Vemod.Vmdls.HandshakeTimeout}
	case c.Vemod.Vmdls.ShutdownTimeout <= 0:
		return &FieldError{Key: KeyVmdlsShutdownTimeout, Expected: "positive duration", Value: c.Vemod.Vmdls.ShutdownTimeout}
	}
	return nil
}

// Settings returns a copy of the merged settings tree.
func (c *Config) Settings() map[string]any {
	return cloneValue(c.settings).(map[string]any)
}

// Lookup returns a copy of the value at a dotted key.
func (c *Config) Lookup(key string) (any, bool) {
	v, ok := getByPath(c.settings, key)
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// LanguageFor returns the language identifier mapped to path's extension.
func (c *Config) LanguageFor(path string) (string, bool) {
	for ext, lang := range c.Vemod.Extensions {
		if strings.HasSuffix(strings.ToLower(path), strings.ToLower(ext)) {
			return lang, true
		}
	}
	return "", false
}

// VmdlsChanged reports whether a change from c to next requires the
// language server to restart.
func (c *Config) VmdlsChanged(next *Config) bool {
	a, b := c.Vemod.Vmdls, next.Vemod.Vmdls
	return a.Path != b.Path ||
		a.LookupSentinel != b.LookupSentinel ||
		!slices.Equal(a.Args, b.Args) ||
		a.AutoRestart != b.AutoRestart ||
		a.MaxRestarts != b.MaxRestarts ||
		a.HandshakeTimeout != b.HandshakeTimeout ||
		a.ShutdownTimeout != b.ShutdownTimeout ||
		!slices.Equal(c.Vemod.Languages, next.Vemod.Languages)
}

// decoder reads typed values from a settings tree, keeping the first error.
type decoder struct {
	settings map[string]any
	err      error
}

func (d *decoder) fail(key, expected string, v any) {
	if d.err == nil {
		d.err = &FieldError{Key: key, Expected: expected, Value: v}
	}
}

func (d *decoder) value(key string) any {
	v, _ := getByPath(d.settings, key)
	return v
}

func (d *decoder) string(key string) string {
	switch v := d.value(key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		d.fail(key, "string", v)
		return ""
	}
}

func (d *decoder) bool(key string) bool {
	switch v := d.value(key).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "on":
			return true
		case "false", "no", "off":
			return false
		}
	}
	d.fail(key, "boolean", d.value(key))
	return false
}

func (d *decoder) int(key string) int {
	switch v := d.value(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		if v <= math.MaxInt32 {
			return int(v)
		}
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	d.fail(key, "integer", d.value(key))
	return 0
}

func (d *decoder) duration(key string) time.Duration {
	switch v := d.value(key).(type) {
	case string:
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	case time.Duration:
		return v
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	}
	d.fail(key, "duration such as \"10s\" or milliseconds", d.value(key))
	return 0
}

func (d *decoder) strings(key string) []string {
	switch v := d.value(key).(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				d.fail(key, "list of strings", v)
				return nil
			}
			out = append(out, s)
		}
		return out
	case string:
		// Comma-separated, as set from the environment.
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case nil:
		return nil
	default:
		d.fail(key, "list of strings", v)
		return nil
	}
}

func (d *decoder) stringMap(key string) map[string]string {
	m, ok := d.value(key).(map[string]any)
	if !ok {
		d.fail(key, "table of strings", d.value(key))
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			d.fail(key+"."+k, "string", v)
			return nil
		}
		out[k] = s
	}
	return out
}
