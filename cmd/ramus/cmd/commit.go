package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Store an annotation commit at the current tree",
	Args:  cobra.NoArgs,
	RunE:  runCommit,
}

func init() {
	commitCmd.Flags().StringP("message", "m", "", "commit message")
	commitCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	head, err := store.Commit(cmd.Context(), message)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(store.Name()), keyColor(head.Short()))
	return nil
}
