package heap

// blockState is the logical state of a block record.
//
// A record is blockUnused while it sits in the arena's free stack. Live
// blocks tile the user region in address order and are exactly one of Free,
// Allocated or PendingFree.
type blockState uint8

const (
	blockUnused blockState = iota
	blockFree
	blockAllocated
	blockPendingFree
)

func (s blockState) String() string {
	switch s {
	case blockUnused:
		return "unused"
	case blockFree:
		return "free"
	case blockAllocated:
		return "allocated"
	case blockPendingFree:
		return "pending-free"
	}
	return "invalid"
}

// noBlock marks an empty block reference (lookup table slot, prev/next link,
// or search result).
const noBlock = int32(-1)

// blockInfo describes one maximal run of consecutive pages. Records live in
// a fixed arena on the Heap and refer to each other by arena index, so prev
// and next are indices, not pointers.
type blockInfo struct {
	state     blockState
	pageIndex uint32
	pageCount uint32
	prev      int32
	next      int32
}

// newBlockInfo takes a record off the unused stack. The record must still be
// flagged unused; anything else means the arena has been scribbled on.
func (h *Heap) newBlockInfo() int32 {
	if len(h.unused) == 0 {
		corrupt("block record pool exhausted")
	}
	idx := h.unused[len(h.unused)-1]
	h.unused = h.unused[:len(h.unused)-1]

	b := &h.blocks[idx]
	if b.state != blockUnused {
		corrupt("block record %d corrupted: state %s on unused stack", idx, b.state)
	}
	*b = blockInfo{prev: noBlock, next: noBlock}
	return idx
}

// freeBlockInfo returns a record to the unused stack.
func (h *Heap) freeBlockInfo(idx int32) {
	b := &h.blocks[idx]
	*b = blockInfo{state: blockUnused, prev: noBlock, next: noBlock}
	h.unused = append(h.unused, idx)
}
