// Package warnonce gates repeated diagnostics behind a process-lifetime token
// so that warnings which can fire once per parsed line (duplicate measurement
// keys, malformed note lines, unknown config keys) are logged a single time
// per process instead of flooding stderr on large histories.
package warnonce

import "sync"

var (
	mu   sync.Mutex
	seen = map[string]bool{}
)

// Do runs fn the first time it is called for token during this process's
// lifetime, and is a no-op on every subsequent call with the same token.
func Do(token string, fn func()) {
	mu.Lock()
	already := seen[token]
	seen[token] = true
	mu.Unlock()

	if !already {
		fn()
	}
}

// reset clears all tokens. Test-only.
func reset() {
	mu.Lock()
	seen = map[string]bool{}
	mu.Unlock()
}
