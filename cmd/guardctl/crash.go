package main

import (
	"sync"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guardheap/heap"
)

// poke stores one byte through a raw pointer, the way a host program routed
// into the heap through a C shim would. The crash demos need it because Go
// slices refuse to express "one past the end".
func poke(p unsafe.Pointer, off int, v byte) {
	*(*byte)(unsafe.Add(p, off)) = v
}

func newHeap() *heap.Heap {
	h, err := heap.New(heapSize)
	if err != nil {
		panic(err)
	}
	logger.Debug("heap created", "bytes", heapSize, "pages", h.PageCount())
	return h
}

var overrunCmd = &cobra.Command{
	Use:   "overrun",
	Short: "Write one element past an allocation (dies on the guard page)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		buf, err := h.Allocate(128, 4)
		if err != nil {
			panic(err)
		}

		buf[127] = 'a'
		printInfo("buf[127] ok; writing buf[128]...\n")
		poke(unsafe.Pointer(unsafe.SliceData(buf)), 128, 'a') // dies here
		printInfo("still alive - the guard page failed\n")
	},
}

var useAfterFreeCmd = &cobra.Command{
	Use:   "use-after-free",
	Short: "Store through a freed block (dies on a decommitted page)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		buf, err := h.Allocate(128, 4)
		if err != nil {
			panic(err)
		}
		p := unsafe.Pointer(unsafe.SliceData(buf))

		h.Free(buf)
		printInfo("freed; block is parked on the observation list, writing through it...\n")
		poke(p, 0, 'a') // dies here
		printInfo("still alive - the freed pages were accessible\n")
	},
}

var doubleFreeCmd = &cobra.Command{
	Use:   "double-free",
	Short: "Free the same pointer twice (dies on an assertion)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		buf, err := h.Allocate(128, 4)
		if err != nil {
			panic(err)
		}

		h.Free(buf)
		printInfo("first free ok, freeing again...\n")
		h.Free(buf) // panics here
		printInfo("still alive - the double free went unnoticed\n")
	},
}

var underrunCmd = &cobra.Command{
	Use:   "underrun",
	Short: "Scribble before an allocation (dies on the fill-pattern check)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		buf, err := h.Allocate(128, 4)
		if err != nil {
			panic(err)
		}

		// One byte before the buffer: same committed page, so the store
		// lands. Free notices the ruined fill pattern.
		poke(unsafe.Pointer(unsafe.SliceData(buf)), -1, 0x00)
		printInfo("scribbled one byte before the buffer, freeing...\n")
		h.Free(buf) // panics here
		printInfo("still alive - the underrun went unnoticed\n")
	},
}

var raceCmd = &cobra.Command{
	Use:   "race",
	Short: "Hammer the heap from two goroutines (dies on the reentrancy guard)",
	Run: func(cmd *cobra.Command, args []string) {
		h := newHeap()
		defer h.Close()

		printInfo("two goroutines allocating and freeing without a lock...\n")
		var wg sync.WaitGroup
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					buf, err := h.Allocate(64, 8)
					if err == nil {
						h.Free(buf)
					}
				}
			}()
		}
		wg.Wait()
	},
}

func init() {
	rootCmd.AddCommand(overrunCmd)
	rootCmd.AddCommand(useAfterFreeCmd)
	rootCmd.AddCommand(doubleFreeCmd)
	rootCmd.AddCommand(underrunCmd)
	rootCmd.AddCommand(raceCmd)
}
