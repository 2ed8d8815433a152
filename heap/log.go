package heap

import (
	"fmt"
	"os"
)

// Compile-time toggle for verbose tracing in addition to the env var.
const debugHeap = false

// Runtime trace flag - controlled by the GUARDHEAP_LOG env var.
var logHeap = os.Getenv("GUARDHEAP_LOG") != ""

// heapLogf prints an operation trace line when tracing is enabled.
func heapLogf(format string, args ...any) {
	if debugHeap || logHeap {
		fmt.Fprintf(os.Stderr, "[HEAP] "+format+"\n", args...)
	}
}
