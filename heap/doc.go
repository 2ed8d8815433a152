// Package heap implements a page-guard debugging heap: a deliberately slow,
// memory-hungry allocator that turns latent memory-safety bugs into
// immediate, deterministic crashes.
//
// # Overview
//
// Every allocation occupies its own run of 4k pages inside a single reserved
// address range, with the user data pushed as close as alignment allows to a
// trailing decommitted guard page. The result:
//
//   - Positive array overruns land on the guard page and fault immediately.
//   - Freed blocks are decommitted and parked on an observation list, so
//     use-after-free faults for as long as the heap can afford to not recycle
//     the pages.
//   - Double frees trip an assertion inside Free.
//   - Unsynchronized multi-threaded use trips a reentrancy guard.
//
// To improve the odds of catching use-after-free and double frees, give the
// heap more memory: freed blocks stay inaccessible until an allocation
// failure forces the pending-free list to be flushed and coalesced.
//
// # Usage
//
//	h, err := heap.New(64 << 20)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	buf, err := h.Allocate(128, 8)
//	if err != nil {
//	    return err // heap full
//	}
//	// ... use buf ...
//	h.Free(buf)
//
// # Failure model
//
// Allocation failure (no sufficiently large free block, even after flushing
// the pending-free list) is the only recoverable error and is reported as
// ErrNoSpace. Everything else the heap can detect — double free, freeing a
// foreign pointer, fill-pattern underruns, bookkeeping corruption,
// concurrent entry — is the bug this tool exists to find, and panics with a
// *CorruptionError. Out-of-bounds and use-after-free accesses are caught by
// the OS: the faulting page is decommitted, so the process dies on the
// offending instruction with no handler in between.
//
// # Thread safety
//
// The heap is not thread-safe and does not try to be. Concurrent use is
// detected, not supported: callers must serialize access.
//
// This heap is terribly slow and wastes tons of memory. Use it to hunt down
// memory errors, not to ship.
package heap
