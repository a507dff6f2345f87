package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"proctool/procinfo"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List processes owned by the current user",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

func init() {
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	infos, err := procinfo.ListProcesses(os.Getuid())
	if err != nil {
		return err
	}
	bold := color.New(color.Bold)
	for _, info := range infos {
		tty := info.TTY
		if tty == "" {
			tty = "-"
		}
		bold.Printf("%6d", info.Pid)
		fmt.Printf("  ppid=%-6d pgid=%-6d tty=%-12s %s\n", info.PPid, info.Pgid, tty, info.Name)
	}
	return nil
}
