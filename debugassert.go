//go:build !bltreedebug

package gokv

// debugAssert is a no-op in production builds: the caller already
// returns ErrInvariantViolated on the same condition, so there's
// nothing left to do here. See debugassert_debug.go for the
// `-tags bltreedebug` build.
func debugAssert(cond bool, msg string) {}
