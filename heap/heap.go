package heap

import (
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/guardheap/internal/vmem"
)

// PageSize is the allocation granularity. Every allocation consumes at least
// two pages: one for the user data and one for the trailing guard.
const PageSize = vmem.PageSize

// fillByte is written between the start of the first page and the user
// pointer. Free checks the pattern and trips on a mismatch, which catches
// small negative-offset scribbles that the guard page cannot.
const fillByte = 0xFC

// Heap is a page-guard debugging heap over a single reserved address range.
//
// The user region is PageCount pages, reserved up front and committed one
// allocation at a time. Bookkeeping lives beside it: a fixed arena of block
// records tiling the region in address order, a free list, a pending-free
// list (the use-after-free observation window), and a page→block lookup
// table for O(1) free resolution.
type Heap struct {
	pageCount int
	maxAllocs int

	// region is the reserved user region. All pages start inaccessible;
	// Allocate commits what it hands out and leaves the guard page alone.
	region []byte

	blocks []blockInfo // fixed record arena, maxAllocs entries
	unused []int32     // stack of arena indices not bound to a block

	freeList    []int32 // indices of blockFree records, unordered
	pendingList []int32 // indices of blockPendingFree records, free order
	lookup      []int32 // page index → arena index for allocated blocks

	reentrancy atomic.Int32

	stats Stats
}

// New creates a debugging heap with a user region of sizeBytes.
//
// sizeBytes must be a multiple of the page size and at least two pages: a
// sub-4k allocation costs two pages, so a budget of N pages supports at most
// N/2 concurrent allocations. Pad generously — freed blocks stay on the
// observation list, inaccessible, until the allocator runs dry, so the
// bigger the heap the longer use-after-free stays detectable.
//
// The only failure is address-space reservation, which reports the vmem
// error. A misshapen budget is caller error and trips an assertion.
func New(sizeBytes int) (*Heap, error) {
	if sizeBytes < 2*PageSize || sizeBytes%PageSize != 0 {
		corrupt("heap size %d must be a multiple of %d and at least %d", sizeBytes, PageSize, 2*PageSize)
	}

	pageCount := sizeBytes / PageSize
	maxAllocs := pageCount / 2

	region, err := vmem.Reserve(sizeBytes)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		pageCount:   pageCount,
		maxAllocs:   maxAllocs,
		region:      region,
		blocks:      make([]blockInfo, maxAllocs),
		unused:      make([]int32, 0, maxAllocs),
		freeList:    make([]int32, 0, pageCount),
		pendingList: make([]int32, 0, pageCount),
		lookup:      make([]int32, pageCount),
	}

	// Stack the records in reverse so index 0 is handed out first.
	for i := maxAllocs - 1; i >= 0; i-- {
		h.unused = append(h.unused, int32(i))
	}
	for i := range h.lookup {
		h.lookup[i] = noBlock
	}

	// The root block spans the whole user region and is the sole free-list
	// entry. Everything else is carved out of it.
	root := h.newBlockInfo()
	b := &h.blocks[root]
	b.state = blockFree
	b.pageIndex = 0
	b.pageCount = uint32(pageCount)
	h.freeList = append(h.freeList, root)

	heapLogf("init: %d pages (%d bookkeeping records)", pageCount, maxAllocs)
	return h, nil
}

// Close releases the entire reserved range back to the OS. No per-allocation
// cleanup happens; every page, live or freed, goes away at once.
func (h *Heap) Close() error {
	heapLogf("close: %d pages released", h.pageCount)
	return vmem.Release(h.region)
}

// PageCount returns the number of pages in the user region.
func (h *Heap) PageCount() int { return h.pageCount }

// MaxAllocs returns the maximum number of concurrent allocations the heap
// can track.
func (h *Heap) MaxAllocs() int { return h.maxAllocs }

// Allocate returns a slice of size bytes whose address is a multiple of
// alignment. The slice's capacity extends to the guard page, so writes past
// len but within cap still succeed; the first byte past cap is on the guard
// page and faults.
//
// size must be positive and alignment a power of two no larger than the page
// size. Returns ErrNoSpace when no block fits even after flushing the
// pending-free list; the heap is unchanged in that case apart from the
// flush.
func (h *Heap) Allocate(size, alignment int) ([]byte, error) {
	h.enter()
	defer h.leave()

	if size <= 0 {
		corrupt("zero-size allocation")
	}
	if alignment <= 0 || alignment&(alignment-1) != 0 || alignment > PageSize {
		corrupt("bad alignment %d: must be a power of two <= %d", alignment, PageSize)
	}

	h.stats.AllocCalls++

	// One page extra so there is always room for the guard at the end.
	pages := 1 + (size+PageSize-1)/PageSize

	idx := h.allocFromFreeList(pages)
	if idx == noBlock {
		// Nothing fits. Consolidate the observation list and retry.
		h.flushPendingFrees()
		idx = h.allocFromFreeList(pages)
	}
	if idx == noBlock {
		h.stats.FailedAllocs++
		heapLogf("allocate %d/%d: no fit in %d free blocks", size, alignment, len(h.freeList))
		return nil, ErrNoSpace
	}

	buf := h.finalizeAlloc(idx, size, pages, alignment)

	h.stats.BytesRequested += int64(size)
	h.stats.LiveBlocks++
	if h.stats.LiveBlocks > h.stats.PeakLiveBlocks {
		h.stats.PeakLiveBlocks = h.stats.LiveBlocks
	}
	return buf, nil
}

// finalizeAlloc commits the user pages of a freshly carved block, refreshes
// the guard page, and right-justifies the user slice against it.
func (h *Heap) finalizeAlloc(idx int32, size, pages, alignment int) []byte {
	b := &h.blocks[idx]
	base := int(b.pageIndex) * PageSize
	userBytes := (pages - 1) * PageSize

	must(vmem.Commit(h.region[base : base+userBytes]))
	h.stats.PagesCommitted += int64(pages - 1)

	// The guard page should already be inaccessible, from the initial
	// reservation or from the decommit in Free. Decommit again rather than
	// trust it.
	must(vmem.Decommit(h.region[base+userBytes : base+pages*PageSize]))

	// Ideally the user data ends flush against the guard page. Rounding the
	// offset down to the alignment gives away at most alignment-1 bytes of
	// that tightness.
	ideal := (PageSize - size%PageSize) % PageSize
	offset := ideal &^ (alignment - 1)

	for i := base; i < base+offset; i++ {
		h.region[i] = fillByte
	}

	heapLogf("allocate %d/%d: pages [%d,%d) offset %d", size, alignment, b.pageIndex, int(b.pageIndex)+pages, offset)
	return h.region[base+offset : base+offset+size : base+userBytes]
}

// Free returns an allocation to the heap. buf must be a slice previously
// returned by Allocate on this heap, and still live.
//
// The block is not recycled immediately: its pages are decommitted and the
// block parks on the pending-free list, where any access faults, until an
// allocation failure forces a flush.
func (h *Heap) Free(buf []byte) {
	h.enter()
	defer h.leave()

	pageIndex, pageOffset := h.resolve(buf)

	idx := h.lookup[pageIndex]
	if idx == noBlock {
		corrupt("double free of %#x", h.addrOf(buf))
	}
	b := &h.blocks[idx]
	if b.state != blockAllocated {
		corrupt("block state corrupted: freeing %s block at page %d", b.state, pageIndex)
	}

	// The bytes between the page start and the user pointer were filled at
	// allocation time. A mismatch means something wrote before the start of
	// the buffer.
	base := pageIndex * PageSize
	for i := 0; i < pageOffset; i++ {
		if h.region[base+i] != fillByte {
			corrupt("underrun detected %d bytes before %#x", pageOffset-i, h.addrOf(buf))
		}
	}

	b.state = blockPendingFree

	// Clear the lookup entry to catch double frees; the rest of the range
	// must already be clear.
	h.lookup[pageIndex] = noBlock
	for i := 1; i < int(b.pageCount); i++ {
		if h.lookup[pageIndex+i] != noBlock {
			corrupt("block lookup corrupted at page %d", pageIndex+i)
		}
	}

	h.pendingList = append(h.pendingList, idx)

	// Make the whole block fault on access. The guard page is already
	// inaccessible.
	userBytes := (int(b.pageCount) - 1) * PageSize
	must(vmem.Decommit(h.region[base : base+userBytes]))
	h.stats.PagesDecommitted += int64(b.pageCount - 1)

	h.stats.FreeCalls++
	h.stats.LiveBlocks--
	heapLogf("free %#x: pages [%d,%d) parked pending", h.addrOf(buf), pageIndex, pageIndex+int(b.pageCount))
}

// AllocSize returns the usable capacity of a live allocation: the bytes from
// the user pointer to the guard page boundary. This can exceed the requested
// size by up to alignment-1 bytes.
func (h *Heap) AllocSize(buf []byte) int {
	h.enter()
	defer h.leave()

	pageIndex, pageOffset := h.resolve(buf)
	idx := h.lookup[pageIndex]
	if idx == noBlock {
		corrupt("unknown pointer %#x", h.addrOf(buf))
	}
	b := &h.blocks[idx]
	return (int(b.pageCount)-1)*PageSize - pageOffset
}

// Owns reports whether buf points into the heap's user region. This is a
// range check, not a validity check: a pointer into a freed block still
// answers true.
func (h *Heap) Owns(buf []byte) bool {
	return h.OwnsAddr(h.addrOf(buf))
}

// OwnsAddr is Owns for a raw address.
func (h *Heap) OwnsAddr(addr uintptr) bool {
	h.enter()
	defer h.leave()

	base := h.baseAddr()
	end := base + uintptr(h.pageCount)*PageSize
	return addr >= base && addr <= end
}

// baseAddr returns the address of the first user page.
func (h *Heap) baseAddr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(h.region)))
}

// addrOf returns the address a caller-held slice points at.
func (h *Heap) addrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		corrupt("empty slice passed to heap")
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// resolve maps a caller-held slice to its page index and offset within that
// page, tripping on anything outside the user region.
func (h *Heap) resolve(buf []byte) (pageIndex, pageOffset int) {
	rel := h.addrOf(buf) - h.baseAddr()
	pageIndex = int(rel / PageSize)
	if pageIndex >= h.pageCount {
		corrupt("invalid pointer %#x: outside user region", h.addrOf(buf))
	}
	return pageIndex, int(rel % PageSize)
}
