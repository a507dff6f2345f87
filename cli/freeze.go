package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var freezeCmd = &cobra.Command{
	Use:   "freeze <pid>",
	Short: "Capture a process's registers and memory to <pid>.state",
	Args:  cobra.ExactArgs(1),
	RunE:  runFreeze,
}

func init() {
	rootCmd.AddCommand(freezeCmd)
}

func runFreeze(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{Type: wire.CommandFreeze, Pid: pid})
}
