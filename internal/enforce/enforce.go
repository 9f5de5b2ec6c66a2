// Package enforce provides an ENFORCE primitive for invariants whose
// violation indicates misuse of an internal API rather than a condition a
// caller can recover from — the fatal half of the error taxonomy in
// SPEC_FULL.md §7 (ForkMismatch/Gap from the history log, capture I/O
// failure). Recoverable conditions (OutOfRange, decode errors) are
// returned as ordinary errors and MissingTrace is logged as a warning;
// none of them go through here.
package enforce

import (
	"math"

	"github.com/greymass/statehistory/internal/logger"
)

func init() {
	CheckCompiler()
}

// ENFORCE panics if query is a false bool or a non-nil error. Any other
// value is treated as "the condition holds" and ENFORCE is a no-op.
func ENFORCE(query interface{}, args ...interface{}) {
	switch t := query.(type) {
	case bool:
		if !t {
			logger.Printf("enforce", "ENFORCE: %v", args)
			panic(0)
		}
	case error:
		if t != nil {
			logger.Printf("enforce", "ENFORCE: %v", args)
			panic(t)
		}
	}
}

// CheckCompiler guards against running on a platform where int is narrower
// than int64, which would silently corrupt block numbers and offsets.
func CheckCompiler() {
	myint := int(math.MaxInt64)
	myint64 := int64(math.MaxInt64)
	ENFORCE(uint64(myint) == uint64(myint64), "must be on a 64 bit system")
}
