// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"runtime"

	"scribe/cmd"
	"scribe/pkg/build"
)

// main wires build information and hands over to the command line.
//
// Startup is a cold path: build flags, runtime settings and argument parsing.
// The hot path starts when a command opens the capture device and ends when
// it stops the session; each command tears its pipeline down before
// returning.
func main() {
	// Binaries built without -ldflags keep the development values.
	_ = build.Initialize()

	// One thread for the capture loop, one for analysis, one for UI and I/O.
	runtime.GOMAXPROCS(max(3, min(runtime.NumCPU(), 4)))

	if err := cmd.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", build.GetBuildFlags().Name, err)
		os.Exit(1)
	}
}
