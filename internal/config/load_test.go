package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Vemod.Path != "vemod" || cfg.Vemod.LookupSentinel != "vemod" {
		t.Errorf("vemod path = %q/%q, want vemod/vemod", cfg.Vemod.Path, cfg.Vemod.LookupSentinel)
	}
	if !reflect.DeepEqual(cfg.Vemod.Languages, []string{"vemod", "blue"}) {
		t.Errorf("Languages = %v, want [vemod blue]", cfg.Vemod.Languages)
	}
	if cfg.Vemod.Extensions[".blue"] != "blue" {
		t.Errorf("Extensions = %v, want .blue -> blue", cfg.Vemod.Extensions)
	}
	if cfg.Vemod.TerminalName != "VeMod" || !cfg.Vemod.ClearTerminal {
		t.Errorf("terminal = %q clear=%v, want VeMod true", cfg.Vemod.TerminalName, cfg.Vemod.ClearTerminal)
	}
	if cfg.Vemod.TranspileExtension != ".vmd" {
		t.Errorf("TranspileExtension = %q, want .vmd", cfg.Vemod.TranspileExtension)
	}

	v := cfg.Vemod.Vmdls
	if v.Path != "vmdls" || !v.AutoRestart || v.MaxRestarts != 4 {
		t.Errorf("Vmdls = %+v", v)
	}
	if v.HandshakeTimeout != 10*time.Second || v.ShutdownTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/5s", v.HandshakeTimeout, v.ShutdownTimeout)
	}
	if v.OutputName != "VeMod Language Server" {
		t.Errorf("OutputName = %q", v.OutputName)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "vemodkit.toml", `
[vemod]
path = "/opt/vemod/bin/vemod"
clearTerminal = false

[vemod.vmdls]
args = ["--stdio", "--verbose"]
maxRestarts = 2
handshakeTimeout = "2s"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vemod.Path != "/opt/vemod/bin/vemod" {
		t.Errorf("Path = %q", cfg.Vemod.Path)
	}
	if cfg.Vemod.ClearTerminal {
		t.Error("ClearTerminal = true, want false")
	}
	if !reflect.DeepEqual(cfg.Vemod.Vmdls.Args, []string{"--stdio", "--verbose"}) {
		t.Errorf("Args = %v", cfg.Vemod.Vmdls.Args)
	}
	if cfg.Vemod.Vmdls.MaxRestarts != 2 {
		t.Errorf("MaxRestarts = %d, want 2", cfg.Vemod.Vmdls.MaxRestarts)
	}
	if cfg.Vemod.Vmdls.HandshakeTimeout != 2*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 2s", cfg.Vemod.Vmdls.HandshakeTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Vemod.Vmdls.Path != "vmdls" {
		t.Errorf("Vmdls.Path = %q, want vmdls", cfg.Vemod.Vmdls.Path)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "vemodkit.yaml", `
vemod:
  languages: [blue]
  vmdls:
    path: ~/vm/zig-out/bin/vmdls
    maxRestarts: 0
logging:
  level: debug
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Vemod.Languages, []string{"blue"}) {
		t.Errorf("Languages = %v, want [blue]", cfg.Vemod.Languages)
	}
	if cfg.Vemod.Vmdls.Path != "~/vm/zig-out/bin/vmdls" {
		t.Errorf("Vmdls.Path = %q", cfg.Vemod.Vmdls.Path)
	}
	if cfg.Vemod.Vmdls.MaxRestarts != 0 {
		t.Errorf("MaxRestarts = %d, want 0", cfg.Vemod.Vmdls.MaxRestarts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFile_DottedKeys(t *testing.T) {
	path := writeFile(t, "vemodkit.toml", `
"vemod.vmdls.path" = "/usr/local/bin/vmdls"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vemod.Vmdls.Path != "/usr/local/bin/vmdls" {
		t.Errorf("Vmdls.Path = %q", cfg.Vemod.Vmdls.Path)
	}
	if cfg.Vemod.Vmdls.MaxRestarts != 4 {
		t.Errorf("MaxRestarts = %d, want default 4", cfg.Vemod.Vmdls.MaxRestarts)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
		wantPos bool
	}{
		{
			name:    "unsupported extension",
			file:    "vemodkit.json",
			content: `{}`,
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "toml syntax",
			file:    "bad.toml",
			content: "[vemod]\npath = \n",
			wantPos: true,
		},
		{
			name:    "yaml syntax",
			file:    "bad.yaml",
			content: "vemod:\n  path: [unclosed\n",
			wantPos: true,
		},
		{
			name:    "wrong type",
			file:    "type.toml",
			content: "[vemod.vmdls]\nmaxRestarts = \"many\"\n",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "bad duration",
			file:    "dur.toml",
			content: "[vemod.vmdls]\nhandshakeTimeout = \"soon\"\n",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "negative restarts",
			file:    "neg.toml",
			content: "[vemod.vmdls]\nmaxRestarts = -1\n",
			wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path, nil)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantPos {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("err = %T %v, want *ParseError", err, err)
				}
				if perr.Path != path {
					t.Errorf("Path = %q, want %q", perr.Path, path)
				}
				if perr.Line == 0 {
					t.Errorf("Line = 0, want a line number")
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.toml"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadEnv(t *testing.T) {
	env := []string{
		"HOME=/home/u",
		"VEMOD_PATH=/opt/vemod",
		"VEMOD_VMDLS_PATH=",
		`VEMOD_VMDLS_ARGS=--stdio --log "/tmp/my log"`,
		"VEMOD_LOG_LEVEL=warn",
		"VEMOD_LANGUAGES=vemod, blue ,",
		"VEMOD_VEMOD__VMDLS__MAX_RESTARTS=7",
		"VEMOD_VEMOD__CLEAR_TERMINAL=false",
		"VEMOD_UNRELATED=x",
	}

	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Vemod.Path != "/opt/vemod" {
		t.Errorf("Path = %q", cfg.Vemod.Path)
	}
	if cfg.Vemod.Vmdls.Path != "" {
		t.Errorf("Vmdls.Path = %q, want empty", cfg.Vemod.Vmdls.Path)
	}
	wantArgs := []string{"--stdio", "--log", "/tmp/my log"}
	if !reflect.DeepEqual(cfg.Vemod.Vmdls.Args, wantArgs) {
		t.Errorf("Args = %q, want %q", cfg.Vemod.Vmdls.Args, wantArgs)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Logging.Level)
	}
	if !reflect.DeepEqual(cfg.Vemod.Languages, []string{"vemod", "blue"}) {
		t.Errorf("Languages = %v", cfg.Vemod.Languages)
	}
	if cfg.Vemod.ClearTerminal {
		t.Error("ClearTerminal = true, want false")
	}
	if cfg.Vemod.Vmdls.MaxRestarts != 7 {
		t.Errorf("MaxRestarts = %d, want 7", cfg.Vemod.Vmdls.MaxRestarts)
	}
	if _, ok := cfg.Lookup("unrelated"); ok {
		t.Error("VEMOD_UNRELATED should not map to a setting")
	}
}

func TestLoadEnv_BadArgs(t *testing.T) {
	_, err := LoadEnv([]string{`VEMOD_VMDLS_ARGS=--log "unterminated`})
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("err = %v, want ErrInvalidValue", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"VEMOD__PATH", "vemod.path"},
		{"VEMOD__VMDLS__HANDSHAKE_TIMEOUT", "vemod.vmdls.handshakeTimeout"},
		{"LOGGING__LEVEL", "logging.level"},
		{"PATH", ""},
		{"VEMOD____PATH", ""},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_VmdlsChanged(t *testing.T) {
	base := Default()

	same, _ := FromSettings(map[string]any{"vemod.terminalName": "Other"})
	if base.VmdlsChanged(same) {
		t.Error("terminal name change should not restart the server")
	}

	args, _ := FromSettings(map[string]any{"vemod.vmdls.args": []any{"--stdio"}})
	if !base.VmdlsChanged(args) {
		t.Error("args change should restart the server")
	}

	langs, _ := FromSettings(map[string]any{"vemod.languages": []any{"blue"}})
	if !base.VmdlsChanged(langs) {
		t.Error("language change should restart the server")
	}
}

func TestConfig_LanguageFor(t *testing.T) {
	cfg := Default()
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/src/main.blue", "blue", true},
		{"/src/boot.VMD", "vemod", true},
		{"/src/readme.md", "", false},
	}
	for _, tt := range tests {
		got, ok := cfg.LanguageFor(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LanguageFor(%q) = %q, %v, want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}
