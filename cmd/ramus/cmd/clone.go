package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <remote>",
	Short: "Fetch a branch this repository has never seen",
	Long: "Pull a branch from a remote into a repository that does not have " +
		"it yet. Refuses to run when the local branch already exists.",
	Args: cobra.ExactArgs(1),
	RunE: runClone,
}

func init() {
	rootCmd.AddCommand(cloneCmd)
}

func runClone(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	rem, err := newRemote(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "cloning %s from %s...\n", refColor(branchName()), args[0])

	head, err := repo.Clone(cmd.Context(), rem, branchName())
	if err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "done: %s\n", keyColor(head.Short()))
	return nil
}
