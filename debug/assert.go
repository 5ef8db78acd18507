//go:build debug

package debug

import "fmt"

// Guard assertions that are expensive to evaluate with `if debug.Enabled{...}`,
// otherwise they are still evaluated in release builds.
const Enabled = true

func Assert(b bool, message string) {
	if !b {
		panic(message)
	}
}

func Assertf(b bool, format string, args ...any) {
	if !b {
		panic(fmt.Sprintf(format, args...))
	}
}

func AssertErrNil(err error) {
	if err != nil {
		panic(err)
	}
}
