package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Stream branch updates",
	Long: "Print a line for every branch update that changes the subtree at " +
		"the path, in commit order, until interrupted.",
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	ch, err := store.Watch(cmd.Context(), path)
	if err != nil {
		return err
	}
	for n := range ch {
		fmt.Printf("%s\t%s\n", refColor(n.Branch), keyColor(n.Commit.String()))
	}
	return nil
}
