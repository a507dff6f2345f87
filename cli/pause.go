package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <pid>",
	Short: "Attach to a process, leaving it stopped",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{Type: wire.CommandPause, Pid: pid})
}
