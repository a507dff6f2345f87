package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <pid>",
	Short: "Detach from a process, letting it run again",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{Type: wire.CommandResume, Pid: pid})
}
