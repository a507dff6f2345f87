// Command proctool is the client binary: it parses a subcommand and
// either sends it to proctoold over the wire protocol or, for
// listing queries, answers it directly against /proc.
package main

import (
	"fmt"
	"os"

	"proctool/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
