package heap

// flushPendingFrees drains the observation list, merging each block into
// already-free neighbors where they touch.
//
// The policy is deliberately "only merge with Free neighbors": two adjacent
// pending blocks do not merge with each other in the same pass. Whichever is
// processed first becomes Free, and a later pass (or the tail of this one,
// when the free order cooperates) picks up the merge. Freed memory therefore
// stays parked and inaccessible for as long as the allocator can afford.
func (h *Heap) flushPendingFrees() {
	h.stats.FlushCalls++
	heapLogf("flush: %d pending blocks, %d free", len(h.pendingList), len(h.freeList))

	for _, idx := range h.pendingList {
		merged := false

		// Merge into the left neighbor: the neighbor absorbs this block's
		// pages and this record dies.
		if prev := h.blocks[idx].prev; prev != noBlock {
			pb := &h.blocks[prev]
			if pb.state == blockFree && pb.pageIndex+pb.pageCount == h.blocks[idx].pageIndex {
				pb.next = h.blocks[idx].next
				if pb.next != noBlock {
					h.blocks[pb.next].prev = prev
				}
				pb.pageCount += h.blocks[idx].pageCount

				h.freeBlockInfo(idx)
				h.stats.MergesLeft++

				// Right-side coalescing continues from the survivor.
				idx = prev
				merged = true
			}
		}

		// Merge the right neighbor into this block. The neighbor is on the
		// free list and has to be dug out of it; linear scan, same as the
		// allocation path.
		if next := h.blocks[idx].next; next != noBlock {
			nb := &h.blocks[next]
			if nb.state == blockFree && nb.pageIndex == h.blocks[idx].pageIndex+h.blocks[idx].pageCount {
				h.blocks[idx].next = nb.next
				if nb.next != noBlock {
					h.blocks[nb.next].prev = idx
				}
				h.blocks[idx].pageCount += nb.pageCount

				for fi, v := range h.freeList {
					if v == next {
						h.freeList[fi] = h.freeList[len(h.freeList)-1]
						h.freeList = h.freeList[:len(h.freeList)-1]
						break
					}
				}

				h.freeBlockInfo(next)
				h.stats.MergesRight++
			}
		}

		// A block that survived (was not absorbed leftward) goes back on
		// the free list.
		if !merged {
			h.blocks[idx].state = blockFree
			h.freeList = append(h.freeList, idx)
		}
	}

	h.pendingList = h.pendingList[:0]
}
