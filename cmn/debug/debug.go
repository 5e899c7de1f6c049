// Package debug holds cheap build-time-togglable assertions, in the style
// of the cluster code's debug.Assert — a panic while Enabled is true, a
// no-op when it is set to false.
package debug

import "fmt"

const Enabled = true

func Assert(cond bool, v ...any) {
	if !Enabled {
		return
	}
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, v...)...))
	}
}

func AssertNoErr(err error) {
	if Enabled && err != nil {
		panic(err)
	}
}
