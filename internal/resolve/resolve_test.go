//go:build unix

package resolve

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var vmdlsSpec = Spec{
	Tool:    "vmdls",
	Setting: "vemod.vmdls.path",
	Example: "~/vm/zig-out/bin/vmdls",
}

func writeFile(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	if err := os.Chmod(p, mode); err != nil {
		t.Fatalf("chmod %s: %v", p, err)
	}
	return p
}

// countingLookPath records calls and returns a fixed answer.
type countingLookPath struct {
	calls  int
	result string
	err    error
}

func (c *countingLookPath) lookPath(string) (string, error) {
	c.calls++
	return c.result, c.err
}

func TestResolve_SentinelUsesPathLookup(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "vmdls", 0o755)

	lp := &countingLookPath{result: exe}
	r := New(WithLookPath(lp.lookPath))

	for _, configured := range []string{"vmdls", "", "  vmdls  "} {
		got, err := r.Resolve(vmdlsSpec, configured)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", configured, err)
		}
		if got != exe {
			t.Errorf("Resolve(%q) = %q, want %q", configured, got, exe)
		}
	}
	if lp.calls != 3 {
		t.Errorf("lookPath calls = %d, want 3", lp.calls)
	}
}

func TestResolve_LiteralNeverLooksUp(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "server", 0o755)

	lp := &countingLookPath{result: "/should/not/be/used"}
	r := New(WithLookPath(lp.lookPath))

	got, err := r.Resolve(vmdlsSpec, exe)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != exe {
		t.Errorf("Resolve() = %q, want %q", got, exe)
	}
	if lp.calls != 0 {
		t.Errorf("lookPath calls = %d, want 0", lp.calls)
	}
}

func TestResolve_CustomSentinel(t *testing.T) {
	lp := &countingLookPath{result: "/usr/bin/vmdls"}
	r := New(WithLookPath(lp.lookPath))

	spec := vmdlsSpec
	spec.Sentinel = "default"

	// "vmdls" is no longer the sentinel, so it is a relative literal path.
	_, err := r.Resolve(spec, "vmdls-does-not-exist-here")
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("Resolve() error = %v, want ErrMissingFile", err)
	}
	if lp.calls != 0 {
		t.Errorf("lookPath calls = %d, want 0", lp.calls)
	}
}

func TestResolve_NotFound(t *testing.T) {
	lp := &countingLookPath{err: errors.New("executable file not found in $PATH")}
	r := New(WithLookPath(lp.lookPath))

	_, err := r.Resolve(vmdlsSpec, "vmdls")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}

	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if re.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", re.Kind, KindNotFound)
	}
	msg := err.Error()
	if !strings.Contains(msg, "'vemod.vmdls.path'") || !strings.Contains(msg, "~/vm/zig-out/bin/vmdls") {
		t.Errorf("remediation missing setting or example: %q", msg)
	}
}

func TestResolve_RelativePathEntry(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "vmdls", 0o755)
	chdir(t, dir)

	lp := &countingLookPath{result: "./vmdls", err: exec.ErrDot}
	r := New(WithLookPath(lp.lookPath))

	got, err := r.Resolve(vmdlsSpec, "vmdls")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() = %q, %v; want ErrNotFound for %s", got, err, exe)
	}
	if !errors.Is(err, exec.ErrDot) {
		t.Errorf("error %v does not wrap exec.ErrDot", err)
	}
}

func TestResolve_Kinds(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "good", 0o755)
	plain := writeFile(t, dir, "plain", 0o644)
	sub := filepath.Join(dir, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		configured string
		access     func(string) error
		wantKind   Kind
		wantErr    error
		wantMsg    string
	}{
		{
			name:       "missing",
			configured: filepath.Join(dir, "nope"),
			wantKind:   KindMissingFile,
			wantErr:    ErrMissingFile,
			wantMsg:    "does not exist",
		},
		{
			name:       "no execute bit",
			configured: plain,
			wantKind:   KindNotExecutable,
			wantErr:    ErrNotExecutable,
			wantMsg:    "is not an executable",
		},
		{
			name:       "directory",
			configured: sub,
			wantKind:   KindNotExecutable,
			wantErr:    ErrNotExecutable,
			wantMsg:    "is not an executable",
		},
		{
			name:       "access denied",
			configured: exe,
			access:     func(string) error { return os.ErrPermission },
			wantKind:   KindNotExecutable,
			wantErr:    ErrNotExecutable,
			wantMsg:    "is not an executable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.access != nil {
				opts = append(opts, WithAccessCheck(tt.access))
			}
			r := New(opts...)

			got, err := r.Resolve(vmdlsSpec, tt.configured)
			if err == nil {
				t.Fatalf("Resolve() = %q, want error", got)
			}
			if got != "" {
				t.Errorf("Resolve() path = %q on error, want empty", got)
			}
			var re *Error
			if !errors.As(err, &re) {
				t.Fatalf("error is %T, want *Error", err)
			}
			if re.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", re.Kind, tt.wantKind)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v) = false", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) || !strings.Contains(err.Error(), "`vemod.vmdls.path`") {
				t.Errorf("message = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestResolve_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	exe := writeFile(t, filepath.Join(home, "bin"), "vmdls", 0o755)

	r := New(WithHomeDir(func() (string, error) { return home, nil }))
	got, err := r.Resolve(vmdlsSpec, "~/bin/vmdls")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != exe {
		t.Errorf("Resolve() = %q, want %q", got, exe)
	}
}

func TestResolve_RelativeBecomesAbsolute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tool", 0o755)
	chdir(t, dir)

	got, err := New().Resolve(vmdlsSpec, "./tool")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("Resolve() = %q, want absolute path", got)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "vmdls", 0o755)
	r := New()

	first, err1 := r.Resolve(vmdlsSpec, exe)
	second, err2 := r.Resolve(vmdlsSpec, exe)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors = %v, %v", err1, err2)
	}
	if first != second {
		t.Errorf("results differ: %q vs %q", first, second)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindNotFound, "not found"},
		{KindMissingFile, "missing file"},
		{KindNotExecutable, "not executable"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir on Go < 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
