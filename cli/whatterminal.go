package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"proctool/term"
)

var whatTerminalCmd = &cobra.Command{
	Use:   "what-terminal",
	Short: "Print this shell's own controlling terminal",
	Args:  cobra.NoArgs,
	RunE:  runWhatTerminal,
}

func init() {
	rootCmd.AddCommand(whatTerminalCmd)
}

func runWhatTerminal(cmd *cobra.Command, args []string) error {
	tty, err := term.ControllingTerminal(os.Getpid())
	if err != nil {
		return err
	}
	fmt.Println(tty)
	return nil
}
