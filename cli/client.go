package cli

import (
	"fmt"
	"net"

	"proctool/wire"
)

// sendCommand dials the daemon and sends one command envelope. The
// protocol is one-way (spec §6: "the daemon never writes replies;
// errors are logged"), so this only reports whether the write itself
// succeeded, not whether the command ran cleanly server-side.
func sendCommand(cmd wire.Command) error {
	return sendEnvelope(wire.Envelope{Type: wire.MessageCommand, Command: &cmd})
}

// sendKill tells the daemon to shut down after this connection.
func sendKill() error {
	return sendEnvelope(wire.Envelope{Type: wire.MessageKill})
}

func sendEnvelope(e wire.Envelope) error {
	addr := fmt.Sprintf("127.0.0.1:%d", wire.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not connect to daemon: %w", err)
	}
	defer conn.Close()

	line, err := wire.EncodeEnvelope(e)
	if err != nil {
		return err
	}
	_, err = conn.Write(line)
	return err
}
