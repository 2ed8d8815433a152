package heap

import "fmt"

// ValidationError describes a failed invariant check from Verify.
type ValidationError struct {
	Check   string
	Page    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("heap: %s at page %d: %s", e.Check, e.Page, e.Message)
	}
	return fmt.Sprintf("heap: %s: %s", e.Check, e.Message)
}

// Verify walks the heap's bookkeeping and checks every structural invariant
// that must hold between public calls:
//
//   - the address-order block list exactly tiles the user region,
//   - prev/next links are mutually consistent,
//   - no two adjacent Free blocks exist,
//   - the lookup table maps exactly the first page of each allocated block,
//   - the free and pending lists enumerate exactly the Free and PendingFree
//     blocks,
//   - every arena record is either in the chain or on the unused stack.
//
// Returns the first violation found, or nil. Verify exists for tests and
// diagnosis; the heap itself trips assertions at the point of corruption
// instead of deferring to a walk.
func (h *Heap) Verify() error {
	h.enter()
	defer h.leave()

	// Locate the block covering page 0. The chain head is not stored
	// anywhere; Verify is a full walk regardless.
	head := noBlock
	for i := range h.blocks {
		if h.blocks[i].state != blockUnused && h.blocks[i].pageIndex == 0 && h.blocks[i].prev == noBlock {
			head = int32(i)
			break
		}
	}
	if head == noBlock {
		return &ValidationError{Check: "tiling", Page: 0, Message: "no block covers page 0"}
	}

	inChain := make(map[int32]bool, h.maxAllocs)
	nextPage := uint32(0)
	prev := noBlock

	for idx := head; idx != noBlock; idx = h.blocks[idx].next {
		if inChain[idx] {
			return &ValidationError{Check: "tiling", Page: int(nextPage), Message: fmt.Sprintf("cycle through record %d", idx)}
		}
		inChain[idx] = true

		b := &h.blocks[idx]
		switch b.state {
		case blockFree, blockAllocated, blockPendingFree:
		default:
			return &ValidationError{Check: "tiling", Page: int(b.pageIndex), Message: fmt.Sprintf("record %d has state %s", idx, b.state)}
		}
		if b.pageIndex != nextPage {
			return &ValidationError{Check: "tiling", Page: int(nextPage), Message: fmt.Sprintf("gap or overlap: block starts at page %d", b.pageIndex)}
		}
		if b.pageCount == 0 {
			return &ValidationError{Check: "tiling", Page: int(b.pageIndex), Message: "empty block"}
		}
		if b.prev != prev {
			return &ValidationError{Check: "links", Page: int(b.pageIndex), Message: fmt.Sprintf("prev is %d, expected %d", b.prev, prev)}
		}
		if prev != noBlock && h.blocks[prev].state == blockFree && b.state == blockFree {
			return &ValidationError{Check: "coalescing", Page: int(b.pageIndex), Message: "two adjacent free blocks"}
		}
		nextPage = b.pageIndex + b.pageCount
		prev = idx
	}
	if nextPage != uint32(h.pageCount) {
		return &ValidationError{Check: "tiling", Page: int(nextPage), Message: fmt.Sprintf("chain covers %d of %d pages", nextPage, h.pageCount)}
	}

	// Lookup table: allocated blocks map their first page and nothing else.
	for idx := head; idx != noBlock; idx = h.blocks[idx].next {
		b := &h.blocks[idx]
		for i := uint32(0); i < b.pageCount; i++ {
			page := int(b.pageIndex + i)
			want := noBlock
			if b.state == blockAllocated && i == 0 {
				want = idx
			}
			if h.lookup[page] != want {
				return &ValidationError{Check: "lookup", Page: page, Message: fmt.Sprintf("entry is %d, expected %d", h.lookup[page], want)}
			}
		}
	}

	// The free and pending lists hold exactly the blocks in those states.
	if err := h.verifyListMatchesState(h.freeList, blockFree, inChain, "free-list"); err != nil {
		return err
	}
	if err := h.verifyListMatchesState(h.pendingList, blockPendingFree, inChain, "pending-list"); err != nil {
		return err
	}

	// Record accounting: everything is in the chain or on the unused stack.
	for _, idx := range h.unused {
		if h.blocks[idx].state != blockUnused {
			return &ValidationError{Check: "arena", Page: -1, Message: fmt.Sprintf("record %d on unused stack has state %s", idx, h.blocks[idx].state)}
		}
		if inChain[idx] {
			return &ValidationError{Check: "arena", Page: -1, Message: fmt.Sprintf("record %d is both chained and unused", idx)}
		}
	}
	if len(inChain)+len(h.unused) != h.maxAllocs {
		return &ValidationError{Check: "arena", Page: -1,
			Message: fmt.Sprintf("%d chained + %d unused != %d records", len(inChain), len(h.unused), h.maxAllocs)}
	}

	return nil
}

// verifyListMatchesState checks that list holds exactly the chained blocks
// whose state is want, with no duplicates.
func (h *Heap) verifyListMatchesState(list []int32, want blockState, inChain map[int32]bool, name string) error {
	seen := make(map[int32]bool, len(list))
	for _, idx := range list {
		if !inChain[idx] {
			return &ValidationError{Check: name, Page: -1, Message: fmt.Sprintf("record %d not in the block chain", idx)}
		}
		if h.blocks[idx].state != want {
			return &ValidationError{Check: name, Page: int(h.blocks[idx].pageIndex), Message: fmt.Sprintf("block is %s", h.blocks[idx].state)}
		}
		if seen[idx] {
			return &ValidationError{Check: name, Page: int(h.blocks[idx].pageIndex), Message: "duplicate entry"}
		}
		seen[idx] = true
	}
	total := 0
	for idx := range inChain {
		if h.blocks[idx].state == want {
			total++
		}
	}
	if total != len(list) {
		return &ValidationError{Check: name, Page: -1, Message: fmt.Sprintf("%d blocks in state %s but %d list entries", total, want, len(list))}
	}
	return nil
}
