package heap

// allocFromFreeList finds the best-fitting free block for pages, carves it,
// and returns its arena index, or noBlock if nothing fits.
//
// The search is a linear scan over the whole free list. This is slow. That
// is fine. It is a debug heap.
func (h *Heap) allocFromFreeList(pages int) int32 {
	best := noBlock
	bestSize := ^uint32(0)
	bestAt := 0

	for i, idx := range h.freeList {
		b := &h.blocks[idx]
		if b.state != blockFree {
			corrupt("free list corrupted: block at page %d is %s", b.pageIndex, b.state)
		}
		if count := b.pageCount; count >= uint32(pages) && count < bestSize {
			best = idx
			bestSize = count
			bestAt = i
		}
	}
	if best == noBlock {
		return noBlock
	}

	// Take the winner off the free list by swapping in the last entry.
	h.freeList[bestAt] = h.freeList[len(h.freeList)-1]
	h.freeList = h.freeList[:len(h.freeList)-1]

	b := &h.blocks[best]

	// Split off the tail if the block is bigger than the request. The tail
	// keeps the excess pages, stays free, and slots in right after the
	// winner in address order.
	if unusedPages := b.pageCount - uint32(pages); unusedPages > 0 {
		tail := h.newBlockInfo()
		tb := &h.blocks[tail]
		tb.state = blockFree
		tb.pageIndex = b.pageIndex + b.pageCount - unusedPages
		tb.pageCount = unusedPages

		tb.next = b.next
		tb.prev = best
		if tb.next != noBlock {
			h.blocks[tb.next].prev = tail
		}
		b.next = tail

		h.freeList = append(h.freeList, tail)

		b.pageCount = uint32(pages)
		h.stats.BlockSplits++
	}

	b.state = blockAllocated

	if h.lookup[b.pageIndex] != noBlock {
		corrupt("block lookup corrupted at page %d", b.pageIndex)
	}
	h.lookup[b.pageIndex] = best
	for i := uint32(1); i < b.pageCount; i++ {
		if h.lookup[b.pageIndex+i] != noBlock {
			corrupt("block lookup corrupted at page %d", b.pageIndex+i)
		}
	}

	return best
}
