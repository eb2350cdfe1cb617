package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove the value or subtree at a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	head, err := store.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if head.IsZero() {
		fmt.Fprintf(os.Stderr, "%s unchanged\n", refColor(store.Name()))
		return nil
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(store.Name()), keyColor(head.Short()))
	return nil
}
