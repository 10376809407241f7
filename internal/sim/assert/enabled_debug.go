//go:build arenadebug

package assert

// Enabled reports whether violations panic.
const Enabled = true
