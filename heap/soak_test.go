package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test_RandomSoak drives a seeded random alloc/free workload and checks the
// structural invariants after every operation. The seed is fixed so a
// failure replays exactly.
func Test_RandomSoak(t *testing.T) {
	const (
		seed    = 0x9E3779B9
		ops     = 400
		maxSize = 5 * PageSize
	)

	h, err := New(8 << 20) // 2048 pages
	require.NoError(t, err)
	defer h.Close()

	rng := rand.New(rand.NewSource(seed))
	var live [][]byte

	for op := 0; op < ops; op++ {
		if len(live) == 0 || rng.Intn(3) != 0 {
			size := 1 + rng.Intn(maxSize)
			alignment := 1 << rng.Intn(7)

			buf, allocErr := h.Allocate(size, alignment)
			if allocErr != nil {
				require.ErrorIs(t, allocErr, ErrNoSpace)

				// Exhausted: drop half the live set and move on.
				for i := 0; i < len(live)/2; i++ {
					h.Free(live[i])
				}
				live = live[len(live)/2:]
				continue
			}

			require.Len(t, buf, size)
			require.Zero(t, addr(buf)%uintptr(alignment))
			require.GreaterOrEqual(t, h.AllocSize(buf), size)
			require.True(t, h.Owns(buf))

			// Exercise the committed range end to end.
			full := buf[:cap(buf)]
			full[0] = byte(op)
			full[len(full)-1] = byte(op)

			live = append(live, buf)
		} else {
			i := rng.Intn(len(live))
			h.Free(live[i])
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}

		require.NoError(t, h.Verify(), "op %d", op)
	}

	for _, buf := range live {
		h.Free(buf)
	}
	require.NoError(t, h.Verify())

	s := h.Stats()
	require.Equal(t, s.AllocCalls-s.FailedAllocs, s.FreeCalls)
	require.Zero(t, s.LiveBlocks)
}

// Test_SoakDeterminism runs the same seed twice and compares the resulting
// counters, pinning down any hidden nondeterminism in the policy.
func Test_SoakDeterminism(t *testing.T) {
	run := func() Stats {
		h, err := New(4 << 20)
		require.NoError(t, err)
		defer h.Close()

		rng := rand.New(rand.NewSource(42))
		var live [][]byte
		for op := 0; op < 200; op++ {
			if len(live) == 0 || rng.Intn(2) == 0 {
				buf, allocErr := h.Allocate(1+rng.Intn(3*PageSize), 8)
				if allocErr == nil {
					live = append(live, buf)
				}
			} else {
				i := rng.Intn(len(live))
				h.Free(live[i])
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
			}
		}
		return h.Stats()
	}

	first := run()
	second := run()
	require.Equal(t, first, second)
}
