// Command contextwatch runs greedy generation against a GGUF model and
// reports context window usage, per-token latency and memory growth.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
