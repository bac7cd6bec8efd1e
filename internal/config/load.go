package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override settings.
const EnvPrefix = "VEMOD_"

// envAliases maps short environment variable names to setting keys.
var envAliases = map[string]string{
	"VEMOD_PATH":       KeyPath,
	"VEMOD_LANGUAGES":  KeyLanguages,
	"VEMOD_VMDLS_PATH": KeyVmdlsPath,
	"VEMOD_VMDLS_ARGS": KeyVmdlsArgs,
	"VEMOD_LOG_LEVEL":  KeyLogLevel,
}

// Load builds a Config from the defaults, the file at path (skipped when
// path is empty) and the VEMOD_* entries of environ.
func Load(path string, environ []string) (*Config, error) {
	settings := Defaults()
	if path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		settings = deepMerge(settings, file)
	}
	env, err := LoadEnv(environ)
	if err != nil {
		return nil, err
	}
	settings = deepMerge(settings, env)
	return FromSettings(settings)
}

// LoadFile reads a TOML (.toml) or YAML (.yaml, .yml) settings file. Dotted
// keys are expanded into nested tables.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var settings map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		settings, err = parseTOML(path, data)
	case ".yaml", ".yml":
		settings, err = parseYAML(path, data)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}
	return normalize(settings), nil
}

func parseTOML(path string, data []byte) (map[string]any, error) {
	settings := make(map[string]any)
	if err := toml.Unmarshal(data, &settings); err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return settings, nil
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func parseYAML(path string, data []byte) (map[string]any, error) {
	settings := make(map[string]any)
	if err := yaml.Unmarshal(data, &settings); err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}
	return settings, nil
}

// LoadEnv builds a settings tree from VEMOD_* variables in environ.
//
// The short names VEMOD_PATH, VEMOD_LANGUAGES, VEMOD_VMDLS_PATH,
// VEMOD_VMDLS_ARGS and VEMOD_LOG_LEVEL map to their settings directly. Any
// other variable is read as a path with "__" separating segments and "_"
// separating words, so VEMOD_VEMOD__VMDLS__MAX_RESTARTS sets
// vemod.vmdls.maxRestarts. Values stay strings except VEMOD_VMDLS_ARGS,
// which is split with shell quoting rules.
func LoadEnv(environ []string) (map[string]any, error) {
	settings := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, ok := envAliases[name]
		if !ok {
			key = envKey(strings.TrimPrefix(name, EnvPrefix))
			if key == "" {
				continue
			}
		}

		var v any = value
		if key == KeyVmdlsArgs {
			args, err := shellquote.Split(value)
			if err != nil {
				return nil, &FieldError{Key: key, Expected: "shell-quoted argument list", Value: value}
			}
			list := make([]any, len(args))
			for i, a := range args {
				list[i] = a
			}
			v = list
		}
		setByPath(settings, key, v)
	}
	return settings, nil
}

// envKey converts "VEMOD__VMDLS__MAX_RESTARTS" to "vemod.vmdls.maxRestarts".
// It returns "" for names without a "__" separator.
func envKey(name string) string {
	if !strings.Contains(name, "__") {
		return ""
	}
	parts := strings.Split(name, "__")
	for i, part := range parts {
		if part == "" {
			return ""
		}
		parts[i] = camel(part)
	}
	return strings.Join(parts, ".")
}

func camel(s string) string {
	words := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, w := range words {
		if w == "" {
			continue
		}
		if i > 0 {
			b.WriteString(strings.ToUpper(w[:1]))
			b.WriteString(w[1:])
			continue
		}
		b.WriteString(w)
	}
	return b.String()
}
