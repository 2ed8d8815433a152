package heap

import (
	"errors"
	"fmt"
)

// ErrNoSpace indicates that no free block large enough was found, even after
// flushing the pending-free list. This is the only recoverable failure the
// heap surfaces.
var ErrNoSpace = errors.New("heap: no free block large enough")

// CorruptionError is the panic payload for every fatal condition the heap
// detects: double frees, foreign pointers, fill-pattern underruns,
// unsynchronized concurrent entry, and internal bookkeeping corruption.
//
// These panics are diagnostic trips — the point of the tool — and are meant
// to halt the process. Recovering one and carrying on defeats the purpose.
type CorruptionError struct {
	Check string
}

func (e *CorruptionError) Error() string {
	return "heap: " + e.Check
}

// corrupt raises a fatal diagnostic trip.
func corrupt(format string, args ...any) {
	panic(&CorruptionError{Check: fmt.Sprintf(format, args...)})
}

// must panics on VM layer failures. The logical model treats commit,
// decommit and release as infallible; an error here means the address space
// is in a state the heap cannot reason about.
func must(err error) {
	if err != nil {
		corrupt("virtual memory operation failed: %v", err)
	}
}
