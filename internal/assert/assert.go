// Package assert implements debug-only hard assertions (spec.md 9):
// invariant checks that panic immediately in debug builds and compile
// away to nothing in release builds, grounded on the teacher's
// panic/recover discipline in core/middleware/pipeline.go's Recovery
// middleware, here inverted from "catch and log" to "check and crash"
// since a violated core invariant must not be swallowed.
package assert

import "fmt"

// Enabled gates every check in this package. Production builds should
// set this false at init time (e.g. via a build-tag-selected
// variable) so assertions cost nothing on the hot path; it defaults to
// true so tests catch regressions.
var Enabled = true

// Check panics with msg if cond is false and assertions are enabled.
func Check(cond bool, msg string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic("assertion failed: " + fmt.Sprintf(msg, args...))
}

// NotReached panics unconditionally when assertions are enabled,
// marking a branch the caller believes is unreachable (e.g. an
// exhaustive switch's default case).
func NotReached(msg string, args ...any) {
	if !Enabled {
		return
	}
	panic("unreachable: " + fmt.Sprintf(msg, args...))
}
