//go:build !debug

// Package debug provides invariant checks for register and descriptor
// handling. Build with the debug tag to turn them into panics, otherwise they
// compile to no-ops.
package debug

// Guard assertions that are expensive to evaluate with `if debug.Enabled{...}`,
// otherwise they are still evaluated in release builds.
const Enabled = false

// Assert panics if b is false.
func Assert(b bool, message string) {}

// Assertf is like Assert with a formatted message.
func Assertf(b bool, format string, args ...any) {}

// AssertErrNil panics if err is not nil.
func AssertErrNil(err error) {}
