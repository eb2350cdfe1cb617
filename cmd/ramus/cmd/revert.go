package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var revertCmd = &cobra.Command{
	Use:   "revert <commit>",
	Short: "Move the branch content back to an older commit",
	Long: "Store a new commit whose tree is the target commit's tree. " +
		"History stays intact; the revert has the current head as parent.",
	Args: cobra.ExactArgs(1),
	RunE: runRevert,
}

func init() {
	rootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	target, err := ramus.ParseKey(args[0])
	if err != nil {
		return err
	}
	head, err := store.Revert(cmd.Context(), target)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(store.Name()), keyColor(head.Short()))
	return nil
}
