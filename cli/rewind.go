package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var rewindCmd = &cobra.Command{
	Use:   "rewind <pid>",
	Short: "Re-execute a process's own command line from scratch",
	Args:  cobra.ExactArgs(1),
	RunE:  runRewind,
}

func init() {
	rootCmd.AddCommand(rewindCmd)
}

func runRewind(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{Type: wire.CommandRewind, Pid: pid})
}
