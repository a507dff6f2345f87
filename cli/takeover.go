package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"proctool/wire"
)

var (
	takeoverPause bool
	takeoverBin   string
)

var takeoverCmd = &cobra.Command{
	Use:   "takeover <pid>",
	Short: "Execute a new program image in place of a running process",
	Args:  cobra.ExactArgs(1),
	RunE:  runTakeover,
}

func init() {
	rootCmd.AddCommand(takeoverCmd)
	takeoverCmd.Flags().BoolVar(&takeoverPause, "pause", false, "leave the process stopped after takeover, for inspection")
	takeoverCmd.Flags().StringVar(&takeoverBin, "bin", "", "path to the program image to execute")
	takeoverCmd.MarkFlagRequired("bin")
}

func runTakeover(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return sendCommand(wire.Command{
		Type:  wire.CommandTakeover,
		Pid:   pid,
		Bin:   takeoverBin,
		Pause: takeoverPause,
	})
}
