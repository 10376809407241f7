// Package assert reports contract violations: caller bugs such as beginning a
// second penalty for a robot or placing an entity on an occupied cell.
//
// Builds tagged arenadebug panic on a violation. Release builds log it through the
// supplied logger and the caller skips the offending operation.
package assert

import (
	"fmt"
	"log"
)

// Violation is the panic value raised for contract violations in debug builds.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string { return "contract violation: " + v.Msg }

// Failf reports a violation. It panics when Enabled, otherwise logs to logger (if
// non-nil) and returns the violation so callers can abandon the operation.
func Failf(logger *log.Logger, format string, args ...any) *Violation {
	v := &Violation{Msg: fmt.Sprintf(format, args...)}
	if Enabled {
		panic(v)
	}
	if logger != nil {
		logger.Printf("%v", v)
	}
	return v
}

// NoError is Failf for a non-nil error.
func NoError(logger *log.Logger, err error, what string) bool {
	if err == nil {
		return true
	}
	Failf(logger, "%s: %v", what, err)
	return false
}
