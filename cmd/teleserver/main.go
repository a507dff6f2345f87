// Command teleserver listens for incoming telefork transmissions and
// reconstructs each one as a brand new local process.
package main

import (
	"fmt"
	"net/http"
	"os"

	"proctool/logging"
	"proctool/telefork"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("TELESERVER_ADDR"); v != "" {
		addr = v
	}

	mux := http.NewServeMux()
	mux.Handle("/telefork", telefork.NewServer())

	logging.Info("teleserver listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
