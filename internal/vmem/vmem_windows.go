//go:build windows

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Reserve acquires size bytes of contiguous address space with no backing
// and no access. size must be a page multiple.
func Reserve(size int) ([]byte, error) {
	if !pageAligned(size) {
		return nil, fmt.Errorf("vmem: reserve size %d not page aligned", size)
	}
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, fmt.Errorf("vmem: reserve %d bytes: %w", size, err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// Release returns a reservation to the OS. mem must be the full slice
// returned by Reserve.
//
// VirtualFree with MEM_RELEASE takes a zero size and frees the whole
// reservation the base address came from.
func Release(mem []byte) error {
	addr := uintptr(unsafe.Pointer(&mem[0]))
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("vmem: release: %w", err)
	}
	return nil
}

// Commit makes the range readable and writable, backed by physical memory
// on demand.
func Commit(mem []byte) error {
	addr := uintptr(unsafe.Pointer(&mem[0]))
	if _, err := windows.VirtualAlloc(addr, uintptr(len(mem)), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return fmt.Errorf("vmem: commit %d bytes: %w", len(mem), err)
	}
	return nil
}

// Decommit makes the range inaccessible so that any access faults. The
// backing pages go straight back to the OS.
func Decommit(mem []byte) error {
	addr := uintptr(unsafe.Pointer(&mem[0]))
	if err := windows.VirtualFree(addr, uintptr(len(mem)), windows.MEM_DECOMMIT); err != nil {
		return fmt.Errorf("vmem: decommit %d bytes: %w", len(mem), err)
	}
	return nil
}
