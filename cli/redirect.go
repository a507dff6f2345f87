package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var redirectTTY string

var redirectCmd = &cobra.Command{
	Use:   "redirect <pid>",
	Short: "Redirect a process's stdout/stderr to a terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRedirect,
}

func init() {
	rootCmd.AddCommand(redirectCmd)
	redirectCmd.Flags().StringVar(&redirectTTY, "tty", "", "target terminal (e.g. /dev/pts/3 or pts/3)")
	redirectCmd.MarkFlagRequired("tty")
}

func runRedirect(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{Type: wire.CommandRedirect, Pid: pid, TTY: redirectTTY})
}
