package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <remote>",
	Short: "Pull the branch from a remote",
	Long: "Fetch the remote branch and fold it into the local one. Diverged " +
		"histories merge; the result can be a merge commit.",
	Args: cobra.ExactArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	rem, err := newRemote(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "pulling %s from %s...\n", refColor(branchName()), args[0])

	head, err := repo.Pull(cmd.Context(), rem, branchName())
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "done: %s\n", keyColor(head.Short()))
	return nil
}
