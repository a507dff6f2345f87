package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var writeStdinCmd = &cobra.Command{
	Use:   "write-stdin <pid> <message...>",
	Short: "Stuff a line of text into a process's stdin queue",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runWriteStdin,
}

func init() {
	rootCmd.AddCommand(writeStdinCmd)
}

func runWriteStdin(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	message := strings.Join(args[1:], " ")
	return sendCommand(wire.Command{Type: wire.CommandWriteStdin, Pid: pid, Message: message})
}
