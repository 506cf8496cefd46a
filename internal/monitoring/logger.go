// Package monitoring holds the diagnostic logging hook shared by the
// mission map components.
package monitoring

import "log"

// Logf is the diagnostic logger signature. Components take one at
// construction instead of reaching for a package-level logger.
type Logf func(format string, v ...interface{})

// Default logs through the standard library logger.
func Default() Logf {
	return log.Printf
}

// Discard drops every message. Useful in tests.
func Discard(string, ...interface{}) {}

// OrDefault returns f, or Default when f is nil.
func OrDefault(f Logf) Logf {
	if f == nil {
		return Default()
	}
	return f
}

// WithPrefix returns a Logf that prepends "[prefix] " to every message.
// A nil base logs through Default.
func WithPrefix(base Logf, prefix string) Logf {
	base = OrDefault(base)
	return func(format string, v ...interface{}) {
		base("["+prefix+"] "+format, v...)
	}
}
