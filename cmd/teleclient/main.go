// Command teleclient reads a target process's registers and memory
// and transmits them to a teleserver instance, which reconstructs the
// process on its own host.
package main

import (
	"fmt"
	"os"
	"strconv"

	"proctool/telefork"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: teleclient <pid> <server-url>")
		os.Exit(2)
	}

	pid, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid pid:", err)
		os.Exit(1)
	}

	cl := telefork.NewClient()
	success, err := cl.Send(pid, os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if !success {
		fmt.Fprintln(os.Stderr, "teleserver reported failure")
		os.Exit(1)
	}
}
