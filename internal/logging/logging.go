// Package logging holds the process-wide diagnostic logger used by every
// component. It defaults to log.Printf and can be swapped or muted.
package logging

import "log"

// Logf is the package-level diagnostic logger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
