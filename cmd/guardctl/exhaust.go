package main

import (
	"errors"
	"math/rand"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/guardheap/heap"
)

// pr formats counts and byte totals with digit grouping.
var pr = message.NewPrinter(language.English)

var exhaustCmd = &cobra.Command{
	Use:   "exhaust",
	Short: "Allocate 1-byte chunks until the heap runs dry (clean run)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		count := 0
		for {
			_, err := h.Allocate(1, 1)
			if errors.Is(err, heap.ErrNoSpace) {
				break
			}
			if err != nil {
				panic(err)
			}
			count++
		}

		printInfo("%s\n", pr.Sprintf("heap full after %d one-byte allocations (ceiling %d)", count, h.MaxAllocs()))
		printStats(h.Stats())
	},
}

var (
	soakSeed int64
	soakOps  int
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Run seeded random alloc/free traffic and report stats (clean run)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		rng := rand.New(rand.NewSource(soakSeed))
		var live [][]byte

		for op := 0; op < soakOps; op++ {
			if len(live) == 0 || rng.Intn(3) != 0 {
				size := 1 + rng.Intn(4*4096)
				buf, err := h.Allocate(size, 8)
				if err != nil {
					logger.Debug("allocation failed, freeing everything", "op", op, "live", len(live))
					for _, b := range live {
						h.Free(b)
					}
					live = live[:0]
					continue
				}
				buf[0] = byte(op)
				live = append(live, buf)
			} else {
				i := rng.Intn(len(live))
				h.Free(live[i])
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
			}

			if err := h.Verify(); err != nil {
				panic(err)
			}
		}

		printInfo("%s\n", pr.Sprintf("soak finished: %d operations, %d blocks still live", soakOps, len(live)))
		printStats(h.Stats())
	},
}

func printStats(s heap.Stats) {
	printInfo("%s\n", pr.Sprintf("  allocs:     %d (%d failed)", s.AllocCalls, s.FailedAllocs))
	printInfo("%s\n", pr.Sprintf("  frees:      %d (%d flushes, %d left merges, %d right merges)",
		s.FreeCalls, s.FlushCalls, s.MergesLeft, s.MergesRight))
	printInfo("%s\n", pr.Sprintf("  splits:     %d", s.BlockSplits))
	printInfo("%s\n", pr.Sprintf("  bytes:      %d requested", s.BytesRequested))
	printInfo("%s\n", pr.Sprintf("  pages:      %d committed, %d decommitted", s.PagesCommitted, s.PagesDecommitted))
	printInfo("%s\n", pr.Sprintf("  live peak:  %d blocks", s.PeakLiveBlocks))
}

func init() {
	soakCmd.Flags().Int64Var(&soakSeed, "seed", 1, "Random seed for the traffic pattern")
	soakCmd.Flags().IntVar(&soakOps, "ops", 5000, "Number of operations to run")

	rootCmd.AddCommand(exhaustCmd)
	rootCmd.AddCommand(soakCmd)
}
