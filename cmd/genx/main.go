// Package main is the entry point for the genx CLI.
//
// Usage:
//
//	genx [flags] <command> [args]
//
// Commands:
//
//	models   - List backends registered from the config directory
//	chat     - Stream a generation, optionally recording it
//	replay   - Render a recorded stream
//	segment  - Run a segmentor on conversation lines
//	profile  - Run a profiler on conversation lines and segmentor output
//	jitter   - Feed stamped audio through the realtime jitter buffer
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/genxstream/cmd/genx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
