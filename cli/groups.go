package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"proctool/procinfo"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List process groups and their members",
	Args:  cobra.NoArgs,
	RunE:  runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
}

func runGroups(cmd *cobra.Command, args []string) error {
	groups, err := procinfo.Groups()
	if err != nil {
		return err
	}

	pgids := make([]int, 0, len(groups))
	for pgid := range groups {
		pgids = append(pgids, pgid)
	}
	sort.Ints(pgids)

	yellow := color.New(color.FgYellow, color.Bold)
	for _, pgid := range pgids {
		members := groups[pgid]
		yellow.Printf("pgid %d", pgid)
		fmt.Printf(" (%d process", len(members))
		if len(members) != 1 {
			fmt.Print("es")
		}
		fmt.Println(")")
		for _, m := range members {
			fmt.Printf("  %6d  %s\n", m.Pid, m.Name)
		}
	}
	return nil
}
