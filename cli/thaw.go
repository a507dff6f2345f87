package cli

import (
	"github.com/spf13/cobra"

	"proctool/wire"
)

var thawCmd = &cobra.Command{
	Use:   "thaw <path>",
	Short: "Restore a snapshot file into a brand new process",
	Args:  cobra.ExactArgs(1),
	RunE:  runThaw,
}

func init() {
	rootCmd.AddCommand(thawCmd)
}

func runThaw(cmd *cobra.Command, args []string) error {
	return sendCommand(wire.Command{Type: wire.CommandThaw, Path: args[0]})
}
