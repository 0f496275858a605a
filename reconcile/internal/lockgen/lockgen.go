// Package lockgen issues generation tokens for named operations.
//
// A token is a monotonically increasing integer per lock name. Only the
// most recently issued token for a name is live; any deferred continuation
// that captured an older token must check Live immediately before producing
// a side effect and terminate silently on mismatch. This is the sole
// cancellation mechanism in the engine: staleness is detected lazily at
// resume time, never signalled.
package lockgen

import "sync"

// Token is a generation counter value. The zero value means "never issued"
// and is never returned by Next.
type Token uint64

// DefaultCeiling is the wrap point for long-lived sessions. Tokens wrap
// back to 1, not 0, so "never issued" stays distinguishable.
const DefaultCeiling Token = 1 << 30

// Manager issues and tracks tokens per lock name. Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	ceiling Token
	current map[string]Token
}

// New creates a Manager with the default ceiling.
func New() *Manager {
	return NewWithCeiling(DefaultCeiling)
}

// NewWithCeiling creates a Manager that wraps tokens past ceiling back to 1.
// A ceiling below 2 falls back to the default.
func NewWithCeiling(ceiling Token) *Manager {
	if ceiling < 2 {
		ceiling = DefaultCeiling
	}
	return &Manager{
		ceiling: ceiling,
		current: make(map[string]Token),
	}
}

// Next issues a new token for name, strictly greater than the previous one
// (modulo wraparound at the ceiling).
func (m *Manager) Next(name string) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.current[name] + 1
	if t > m.ceiling {
		t = 1
	}
	m.current[name] = t
	return t
}

// Current returns the latest issued token for name without mutating it.
// Returns 0 if no token was ever issued.
func (m *Manager) Current(name string) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[name]
}

// Live reports whether tok is the most recently issued token for name.
// A zero token is never live.
func (m *Manager) Live(name string, tok Token) bool {
	if tok == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[name] == tok
}
