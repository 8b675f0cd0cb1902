// Package runtest provides a scripted run.Runner for unit tests. Rules are
// matched against the invocation's command line, first match wins, and every
// invocation is recorded for later assertions.
package runtest

import (
	"context"
	"strings"
	"sync"

	"github.com/revet-dev/revet/internal/run"
)

// Rule pairs a command-line substring with the outcome to script for it.
type Rule struct {
	// Contains is matched against strings.Join(inv.Argv, " ").
	Contains string
	Result   run.Result
	Err      error
}

// ScriptRunner is a run.Runner whose behavior is fully scripted.
type ScriptRunner struct {
	mu    sync.Mutex
	rules []Rule
	calls []run.Invocation

	// Default is returned when no rule matches. Zero value means exit 0.
	Default run.Result
	// DefaultErr is returned alongside Default when no rule matches.
	DefaultErr error
}

// NewScriptRunner builds a runner from the given rules.
func NewScriptRunner(rules ...Rule) *ScriptRunner {
	return &ScriptRunner{rules: rules}
}

// Run records the invocation and returns the first matching rule's outcome.
func (s *ScriptRunner) Run(_ context.Context, inv run.Invocation) (run.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inv)

	line := strings.Join(inv.Argv, " ")
	for _, r := range s.rules {
		if strings.Contains(line, r.Contains) {
			return r.Result, r.Err
		}
	}
	return s.Default, s.DefaultErr
}

// Calls returns a copy of every recorded invocation, in order.
func (s *ScriptRunner) Calls() []run.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]run.Invocation(nil), s.calls...)
}

// CommandLines returns each recorded invocation as a joined command line.
func (s *ScriptRunner) CommandLines() []string {
	calls := s.Calls()
	lines := make([]string, len(calls))
	for i, inv := range calls {
		lines[i] = strings.Join(inv.Argv, " ")
	}
	return lines
}
