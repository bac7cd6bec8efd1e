package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type reload struct {
	cfg *Config
	err error
}

func startWatcher(t *testing.T, path string) (*Watcher, <-chan reload) {
	t.Helper()
	ch := make(chan reload, 8)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		ch <- reload{cfg, err}
	}, WithReloadDelay(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, ch
}

func nextReload(t *testing.T, ch <-chan reload) reload {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
		return reload{}
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vemodkit.toml")
	if err := os.WriteFile(path, []byte("[vemod.vmdls]\npath = \"vmdls\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ch := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("[vemod.vmdls]\npath = \"/opt/vmdls\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := nextReload(t, ch)
	if r.err != nil {
		t.Fatalf("reload err = %v", r.err)
	}
	if r.cfg.Vemod.Vmdls.Path != "/opt/vmdls" {
		t.Errorf("Vmdls.Path = %q, want /opt/vmdls", r.cfg.Vemod.Vmdls.Path)
	}
}

func TestWatcher_ReloadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vemodkit.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ch := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("[vemod\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := nextReload(t, ch)
	var perr *ParseError
	if !errors.As(r.err, &perr) {
		t.Fatalf("err = %v, want *ParseError", r.err)
	}
	if r.cfg != nil {
		t.Errorf("cfg = %v, want nil on error", r.cfg)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vemodkit.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ch := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-ch:
		t.Errorf("unexpected reload: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_RunAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vemodkit.toml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, func(*Config, error) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Run = %v, want ErrWatcherClosed", err)
	}
}
