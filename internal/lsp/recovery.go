package lsp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dshills/vemodkit/internal/editor"
)

// RecoveryConfig configures automatic restarts after a server crash.
type RecoveryConfig struct {
	// AutoRestart enables crash recovery.
	AutoRestart bool

	// MaxRestarts is the number of restarts allowed within Window.
	// Default: 4
	MaxRestarts int

	// InitialBackoff is the delay before the first restart.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps the delay.
	// Default: 60 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the delay after each crash.
	// Default: 2.0
	BackoffMultiplier float64

	// Window is the period over which crashes are counted.
	// Default: 5 minutes
	Window time.Duration
}

// DefaultRecoveryConfig returns the default recovery configuration.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		AutoRestart:       true,
		MaxRestarts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
		Window:            5 * time.Minute,
	}
}

// scheduleRecovery arranges a start after a crash observed in generation
// gen. A Stop after the crash bumps the generation and cancels it.
func (s *Session) scheduleRecovery(gen uint64) {
	s.mu.Lock()
	rc := s.recovery
	if !rc.AutoRestart || gen != s.gen {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	if s.crashStart.IsZero() || now.Sub(s.crashStart) > rc.Window {
		s.crashes = 0
		s.crashStart = now
	}
	s.crashes++
	attempt := s.crashes

	if attempt > rc.MaxRestarts {
		s.mu.Unlock()
		s.logger.Error("giving up after %d crashes", attempt)
		editor.ShowError(s.window, fmt.Sprintf(
			"The %s server crashed %d times in the last %s. The server will not be restarted.",
			s.displayName, attempt, rc.Window))
		return
	}

	delay := CalculateBackoff(attempt, rc.InitialBackoff, rc.MaxBackoff, rc.BackoffMultiplier)
	s.retry = time.AfterFunc(delay, func() { s.recover(gen) })
	s.mu.Unlock()

	s.logger.Info("restart %d/%d in %s", attempt, rc.MaxRestarts, delay)
}

// recover runs a scheduled restart under the operation lock.
func (s *Session) recover(gen uint64) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	stale := gen != s.gen
	if !stale {
		s.retry = nil
	}
	s.mu.Unlock()

	if stale || s.State() != StateStopped {
		return
	}

	err := s.startLocked(context.Background())
	if err != nil && errors.Is(err, ErrSpawn) {
		s.scheduleRecovery(gen)
	}
}

// RestartCount returns the number of crashes counted in the current window.
func (s *Session) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashes
}

// CalculateBackoff calculates the backoff duration for a given attempt.
// attempt=0 or attempt=1 returns initial, subsequent attempts use exponential growth.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
