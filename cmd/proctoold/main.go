// Command proctoold is the daemon: it detaches from its invoking
// terminal, binds the wire protocol's listening socket, and dispatches
// each connection's command stream.
package main

import (
	"fmt"
	"os"

	"proctool/daemon"
	"proctool/logging"
)

func main() {
	logPath := "proctool-daemon.log"
	if root := os.Getenv("PROCTOOL_ROOT"); root != "" {
		logPath = root + "/proctool-daemon.log"
	}

	if err := daemon.Daemonize(logPath, "."); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := daemon.ListenAndServe(); err != nil {
		logging.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}
