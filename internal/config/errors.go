package config

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnsupportedFormat is returned for config files that are neither
	// TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidValue is wrapped by every *FieldError.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrWatcherClosed is returned when a closed watcher is started.
	ErrWatcherClosed = errors.New("config watcher is closed")
)

// ParseError is a syntax error in a configuration file.
type ParseError struct {
	Path string
	// Line and Column are 1-based; zero when unknown.
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError reports a setting whose value has the wrong type or range.
type FieldError struct {
	Key      string
	Expected string
	Value    any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %v (%T)", e.Key, e.Expected, e.Value, e.Value)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidValue
}
