// Package resolve locates and validates the external executables vemodkit
// depends on (the vemod CLI and the vmdls language server).
//
// A configured value equal to the tool's lookup sentinel means "search PATH";
// any other value is taken as a literal path. Whatever the source, the
// candidate must exist and be readable and executable by the current user,
// otherwise Resolve returns an *Error carrying a remediation message.
//
// Resolution has no side effects beyond filesystem checks and may be called
// any number of times.
package resolve

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Spec describes one external executable.
type Spec struct {
	// Tool is the executable name searched for in PATH (e.g. "vmdls").
	Tool string

	// Sentinel is the configured value meaning "look up Tool in PATH".
	// Defaults to Tool when empty.
	Sentinel string

	// Setting is the configuration key users edit to fix a failure
	// (e.g. "vemod.vmdls.path").
	Setting string

	// Example is an example path shown in the NotFound remediation.
	Example string
}

// sentinel returns the effective lookup sentinel.
func (s Spec) sentinel() string {
	if s.Sentinel != "" {
		return s.Sentinel
	}
	return s.Tool
}

// IsLookup reports whether configured selects a PATH lookup.
// An empty value selects the lookup too.
func (s Spec) IsLookup(configured string) bool {
	configured = strings.TrimSpace(configured)
	return configured == "" || configured == s.sentinel()
}

// Resolver performs resolution against the filesystem and PATH.
type Resolver struct {
	lookPath func(file string) (string, error)
	stat     func(name string) (fs.FileInfo, error)
	access   func(path string) error
	homeDir  func() (string, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookPath replaces the PATH lookup function.
func WithLookPath(fn func(file string) (string, error)) Option {
	return func(r *Resolver) {
		r.lookPath = fn
	}
}

// WithAccessCheck replaces the readable+executable permission check.
func WithAccessCheck(fn func(path string) error) Option {
	return func(r *Resolver) {
		r.access = fn
	}
}

// WithHomeDir replaces the home directory lookup used for "~/" expansion.
func WithHomeDir(fn func() (string, error)) Option {
	return func(r *Resolver) {
		r.homeDir = fn
	}
}

// New creates a Resolver using the real filesystem and PATH.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		lookPath: exec.LookPath,
		stat:     os.Stat,
		access:   checkAccess,
		homeDir:  os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the absolute path of the executable selected by configured.
// All failures are returned as *Error.
func (r *Resolver) Resolve(spec Spec, configured string) (string, error) {
	configured = strings.TrimSpace(configured)

	var candidate string
	if spec.IsLookup(configured) {
		// A match through a relative PATH entry comes back with
		// exec.ErrDot and is rejected like any other lookup failure.
		found, err := r.lookPath(spec.Tool)
		if err != nil {
			return "", &Error{Kind: KindNotFound, Spec: spec, Err: err}
		}
		if found == "" {
			return "", &Error{Kind: KindNotFound, Spec: spec}
		}
		candidate = found
	} else {
		candidate = r.expandHome(configured)
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", &Error{Kind: KindMissingFile, Spec: spec, Path: candidate, Err: err}
	}

	info, err := r.stat(abs)
	if err != nil {
		return "", &Error{Kind: KindMissingFile, Spec: spec, Path: abs, Err: err}
	}
	if info.IsDir() {
		return "", &Error{Kind: KindNotExecutable, Spec: spec, Path: abs, Err: errIsDirectory}
	}

	if err := r.access(abs); err != nil {
		return "", &Error{Kind: KindNotExecutable, Spec: spec, Path: abs, Err: err}
	}

	return abs, nil
}

// expandHome expands a leading "~/" to the user's home directory.
func (r *Resolver) expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := r.homeDir()
	if err != nil || home == "" {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

var errIsDirectory = errors.New("is a directory")
