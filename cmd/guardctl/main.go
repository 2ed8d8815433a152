// guardctl exercises the guardheap debugging heap's failure modes on
// purpose. Most subcommands are supposed to end with a dead process: that is
// the heap doing its job.
package main

func main() {
	execute()
}
