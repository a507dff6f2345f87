package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"proctool/procinfo"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions and the process groups within them",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	sessions, err := procinfo.Sessions()
	if err != nil {
		return err
	}

	sids := make([]int, 0, len(sessions))
	for sid := range sessions {
		sids = append(sids, sid)
	}
	sort.Ints(sids)

	green := color.New(color.FgGreen, color.Bold)
	for _, sid := range sids {
		pgids := sessions[sid]
		sort.Ints(pgids)
		green.Printf("session %d", sid)
		fmt.Printf(": groups %v\n", pgids)
	}
	return nil
}
