package heap

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

const testHeapSize = 2 << 20 // 512 pages

func addr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Test_SetupTeardown creates and destroys a heap without touching it.
func Test_SetupTeardown(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	require.Equal(t, 512, h.PageCount())
	require.Equal(t, 256, h.MaxAllocs())
	require.NoError(t, h.Verify())
	require.NoError(t, h.Close())
}

// Test_BadBudget verifies that misshapen budgets trip the constructor.
func Test_BadBudget(t *testing.T) {
	for _, size := range []int{0, -PageSize, PageSize, PageSize + 1, 3*PageSize - 100} {
		require.Panics(t, func() { New(size) }, "size %d", size)
	}
}

// Test_AlignedFullPageAllocation allocates a full page and checks placement.
func Test_AlignedFullPageAllocation(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	buf, err := h.Allocate(4096, 8)
	require.NoError(t, err)
	require.Len(t, buf, 4096)

	// A full-page request ends flush against the guard, so the pointer sits
	// exactly on a page boundary.
	require.Zero(t, addr(buf)%PageSize)
	require.Zero(t, addr(buf)%8)
	require.GreaterOrEqual(t, h.AllocSize(buf), 4096)

	// Every byte up to the guard is writable.
	buf[0] = 0xAA
	buf[4095] = 0xBB
	require.Equal(t, byte(0xAA), buf[0])
	require.Equal(t, byte(0xBB), buf[4095])

	require.NoError(t, h.Verify())
	h.Free(buf)
	require.NoError(t, h.Verify())
}

// Test_PointerPlacement checks the right-justified offset math across sizes
// and alignments.
func Test_PointerPlacement(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		alignment int
		offset    int // expected offset within the first page
	}{
		{"tight fit", 128, 4, 3968},
		{"alignment rounds down", 100, 64, 3968},
		{"full page", 4096, 8, 0},
		{"page plus one", 4097, 1, 4095},
		{"odd size", 5000, 8, 3192},
		{"one byte", 1, 1, 4095},
		{"page-aligned request", 512, 4096, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(testHeapSize)
			require.NoError(t, err)
			defer h.Close()

			buf, err := h.Allocate(tt.size, tt.alignment)
			require.NoError(t, err)
			require.Len(t, buf, tt.size)
			require.Zero(t, addr(buf)%uintptr(tt.alignment))
			require.Equal(t, tt.offset, int(addr(buf)%PageSize))

			// Capacity runs from the pointer to the guard page.
			require.Equal(t, h.AllocSize(buf), cap(buf))
			require.GreaterOrEqual(t, h.AllocSize(buf), tt.size)

			// The whole usable capacity is writable.
			full := buf[:cap(buf)]
			for i := range full {
				full[i] = 0x5A
			}
			require.NoError(t, h.Verify())
		})
	}
}

// Test_FillPattern verifies the head of the first page is painted up to the
// user pointer.
func Test_FillPattern(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	buf, err := h.Allocate(128, 4)
	require.NoError(t, err)

	start := addr(buf) % PageSize
	require.Equal(t, uintptr(3968), start)
	for i := uintptr(1); i <= start; i++ {
		b := *(*byte)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), -int(i)))
		require.Equal(t, byte(fillByte), b, "offset -%d", i)
	}
}

// Test_UnderrunDetection verifies that scribbling before the user pointer
// trips the fill-pattern check on free.
func Test_UnderrunDetection(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	buf, err := h.Allocate(128, 4)
	require.NoError(t, err)

	// Clobber one byte just before the allocation. Same committed page, so
	// the store itself succeeds; Free must notice.
	*(*byte)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), -1)) = 0x00

	want := fmt.Sprintf("heap: underrun detected 1 bytes before %#x", addr(buf))
	require.PanicsWithError(t, want, func() {
		h.Free(buf)
	})
}

// Test_DoubleFree verifies the second free of a pointer trips an assertion.
func Test_DoubleFree(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	buf, err := h.Allocate(128, 4)
	require.NoError(t, err)

	h.Free(buf)
	require.Panics(t, func() { h.Free(buf) })
}

// Test_ForeignPointerFree verifies that freeing memory the heap never issued
// trips an assertion.
func Test_ForeignPointerFree(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	foreign := make([]byte, 64)
	require.Panics(t, func() { h.Free(foreign) })
	require.Panics(t, func() { h.AllocSize(foreign) })
}

// Test_ZeroSizeAndBadAlignment verifies the interface forbids them.
func Test_ZeroSizeAndBadAlignment(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	require.Panics(t, func() { h.Allocate(0, 8) })
	require.Panics(t, func() { h.Allocate(-1, 8) })
	require.Panics(t, func() { h.Allocate(16, 0) })
	require.Panics(t, func() { h.Allocate(16, 3) })
	require.Panics(t, func() { h.Allocate(16, 2*PageSize) })
}

// Test_Owns verifies the range check, including its deliberate indifference
// to freed pointers.
func Test_Owns(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	buf, err := h.Allocate(256, 8)
	require.NoError(t, err)
	require.True(t, h.Owns(buf))

	foreign := make([]byte, 64)
	require.False(t, h.Owns(foreign))

	// A freed pointer is still inside the region; Owns does not validate.
	p := addr(buf)
	h.Free(buf)
	require.True(t, h.OwnsAddr(p))
}

// Test_Exhaustion fills the heap with minimal allocations and verifies the
// count is bounded by MaxAllocs and failure is clean.
func Test_Exhaustion(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	var bufs [][]byte
	for {
		buf, allocErr := h.Allocate(1, 1)
		if allocErr != nil {
			require.ErrorIs(t, allocErr, ErrNoSpace)
			break
		}
		bufs = append(bufs, buf)
	}

	// One byte costs two pages, so a 512-page heap maxes out at 256 blocks.
	require.LessOrEqual(t, len(bufs), h.MaxAllocs())
	require.Equal(t, h.MaxAllocs(), len(bufs))
	require.NoError(t, h.Verify())

	// Freeing one block and flushing makes room again.
	h.Free(bufs[17])
	buf, err := h.Allocate(1, 1)
	require.NoError(t, err)
	require.Equal(t, addr(bufs[17]), addr(buf))
	require.NoError(t, h.Verify())
}

// Test_StatsCounters spot-checks the instrumentation counters.
func Test_StatsCounters(t *testing.T) {
	h, err := New(testHeapSize)
	require.NoError(t, err)
	defer h.Close()

	a, err := h.Allocate(128, 4)
	require.NoError(t, err)
	b, err := h.Allocate(128, 4)
	require.NoError(t, err)

	s := h.Stats()
	require.Equal(t, 2, s.AllocCalls)
	require.Equal(t, 2, s.LiveBlocks)
	require.Equal(t, 2, s.PeakLiveBlocks)
	require.Equal(t, int64(256), s.BytesRequested)
	require.Equal(t, int64(2), s.PagesCommitted)

	h.Free(a)
	h.Free(b)
	s = h.Stats()
	require.Equal(t, 2, s.FreeCalls)
	require.Zero(t, s.LiveBlocks)
	require.Equal(t, 2, s.PeakLiveBlocks)
	require.Equal(t, 2, h.PendingBlocks())
}
