package daemon

import (
	"bufio"
	"fmt"
	"net"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/wire"
)

// ListenAndServe binds the wire protocol's loopback-only listening
// socket and serves connections one at a time, exactly as
// original_source's daemon.rs main loop does with its blocking
// TcpListener::incoming() iterator. It returns once a connection sends
// a Kill envelope, or the listener itself fails.
func ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", wire.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return perrors.WrapWithDetail(err, perrors.ErrExternal, "listen_and_serve", fmt.Sprintf("bind %s", addr))
	}
	defer listener.Close()

	logging.Info("daemon listening", "addr", addr)
	ConfirmStarted()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return perrors.WrapWithDetail(err, perrors.ErrExternal, "listen_and_serve", "accept failed")
		}

		logging.Info("handling new client", "remote", conn.RemoteAddr())
		shutdown, err := handleConnection(conn)
		if err != nil {
			logging.Warn("connection handling failed", "error", err)
		}
		if shutdown {
			logging.Info("daemon shutting down")
			return nil
		}
	}
}

// handleConnection reads newline-delimited JSON envelopes off conn
// until it closes or sends Kill. It reports whether the daemon should
// shut down.
func handleConnection(conn net.Conn) (bool, error) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		envelope, err := wire.DecodeEnvelope(line)
		if err != nil {
			logging.Warn("malformed envelope", "error", err)
			continue
		}

		switch envelope.Type {
		case wire.MessageCommand:
			if envelope.Command == nil {
				logging.Warn("command envelope missing command body")
				continue
			}
			// A failing command never kills the daemon (spec §7); log
			// and keep reading this connection's remaining commands.
			if err := wire.Dispatch(*envelope.Command); err != nil {
				logging.Warn("command failed", "type", envelope.Command.Type, "error", err)
			}
		case wire.MessageKill:
			return true, nil
		default:
			logging.Warn("unknown envelope type", "type", envelope.Type)
		}
	}
	return false, scanner.Err()
}
