//go:build linux || freebsd

package vmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Reserve acquires size bytes of contiguous address space with no backing
// and no access. size must be a page multiple.
func Reserve(size int) ([]byte, error) {
	if !pageAligned(size) {
		return nil, fmt.Errorf("vmem: reserve size %d not page aligned", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("vmem: reserve %d bytes: %w", size, err)
	}
	return mem, nil
}

// Release returns a reservation to the OS. mem must be the full slice
// returned by Reserve.
func Release(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("vmem: release: %w", err)
	}
	return nil
}

// Commit makes the range readable and writable, backed by physical memory
// on demand. mem must be a page-aligned sub-range of a reservation.
func Commit(mem []byte) error {
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("vmem: commit %d bytes: %w", len(mem), err)
	}
	return nil
}

// Decommit makes the range inaccessible so that any access faults, and
// hints the kernel the backing pages are no longer needed.
func Decommit(mem []byte) error {
	if err := unix.Madvise(mem, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("vmem: decommit madvise: %w", err)
	}
	if err := unix.Mprotect(mem, unix.PROT_NONE); err != nil {
		return fmt.Errorf("vmem: decommit protect: %w", err)
	}
	return nil
}
