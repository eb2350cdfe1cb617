package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var diffCmd = &cobra.Command{
	Use:   "diff <commit> [commit]",
	Short: "List changed paths between two commits",
	Long: "List every value added, removed, or modified between two commits. " +
		"With one argument, compare it against the current branch head.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := ramus.ParseKey(args[0])
	if err != nil {
		return err
	}
	var b ramus.Key
	if len(args) == 2 {
		if b, err = ramus.ParseKey(args[1]); err != nil {
			return err
		}
	} else {
		head, ok, err := repo.Branches().Read(ctx, branchName())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: no head to compare against", branchName())
		}
		b = head
	}

	roots := make([]ramus.Key, 2)
	for i, ck := range []ramus.Key{a, b} {
		c, ok, err := repo.Commits().Get(ctx, ck)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: no such commit", ck.Short())
		}
		roots[i] = c.Root
	}

	changes, err := repo.Graph().Diff(ctx, roots[0], roots[1])
	if err != nil {
		return err
	}
	for _, ch := range changes {
		switch ch.Kind {
		case ramus.ChangeAdded:
			fmt.Printf("%s %s\n", addColor("+"), ch.Path)
		case ramus.ChangeRemoved:
			fmt.Printf("%s %s\n", delColor("-"), ch.Path)
		default:
			fmt.Printf("%s %s\n", modColor("~"), ch.Path)
		}
	}
	return nil
}
