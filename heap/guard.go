package heap

// The reentrancy guard brackets every public operation with an atomic
// increment/decrement pair. The heap is single-threaded by contract; two
// threads overlapping inside it observe a counter other than 1 on entry or
// 0 on exit and die loudly. Detection is probabilistic — the window is the
// length of the call — but very reliable in practice, since every operation
// takes a syscall or a linear scan.

func (h *Heap) enter() {
	if n := h.reentrancy.Add(1); n != 1 {
		corrupt("unsynchronized multi-threaded use detected (enter saw %d)", n)
	}
}

func (h *Heap) leave() {
	if n := h.reentrancy.Add(-1); n != 0 {
		corrupt("unsynchronized multi-threaded use detected (leave saw %d)", n)
	}
}
