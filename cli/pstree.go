package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"proctool/procinfo"
)

var pstreeCmd = &cobra.Command{
	Use:   "pstree <pid>",
	Short: "Print a process's ancestry from the root of its tree down to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPstree,
}

func init() {
	rootCmd.AddCommand(pstreeCmd)
}

func runPstree(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	chain, err := procinfo.ProcessTree(pid)
	if err != nil {
		return err
	}
	cyan := color.New(color.FgCyan)
	for depth, info := range chain {
		indent := strings.Repeat("  ", depth)
		cyan.Printf("%s%d", indent, info.Pid)
		fmt.Printf(" %s\n", info.Name)
	}
	return nil
}
