package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Merge another branch into the current one",
	Long: "Fold the head of another branch into the current branch with a " +
		"three-way merge. Unresolvable divergence reports the conflicting " +
		"path and leaves the branch untouched.",
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	other, ok, err := repo.Branches().Read(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: no such branch", args[0])
	}

	head, err := repo.Branch(branchName()).Merge(ctx, other)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(branchName()), keyColor(head.Short()))
	return nil
}
