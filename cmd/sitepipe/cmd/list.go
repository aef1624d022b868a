package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the registered tasks",
	Long: `Lists every task with its aliases, the tasks it runs and a description.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		fmt.Printf("%-10s %-12s %-40s %s\n", "TASK", "ALIASES", "RUNS", "DESCRIPTION")
		for _, d := range client.Tasks() {
			runs := strings.Join(client.Refs(d.Name), ", ")
			if runs == "" {
				runs = "-"
			}
			aliases := strings.Join(d.Aliases, ", ")
			if aliases == "" {
				aliases = "-"
			}
			fmt.Printf("%-10s %-12s %-40s %s\n", d.Name, aliases, runs, d.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
