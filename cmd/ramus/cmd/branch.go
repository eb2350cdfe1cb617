package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "List, fork, or delete branches",
	Long: "Without arguments, list branches. With a name, fork the current " +
		"branch: the named branch starts at the current head. With --delete, " +
		"remove the named branch.",
	Args: cobra.MaximumNArgs(1),
	RunE: runBranch,
}

func init() {
	branchCmd.Flags().BoolP("delete", "d", false, "delete the named branch")
	rootCmd.AddCommand(branchCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 0 {
		names, err := repo.Branches().List(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("(no branches)")
			return nil
		}
		for _, name := range names {
			if name == branchName() {
				fmt.Printf("* %s\n", refColor(name))
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	}

	name := args[0]
	if del, _ := cmd.Flags().GetBool("delete"); del {
		if err := repo.Branches().Remove(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted %s\n", name)
		return nil
	}

	head, ok, err := repo.Branches().Read(ctx, branchName())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: nothing to fork from", branchName())
	}
	if _, err := repo.Branches().Update(ctx, name, head); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(name), keyColor(head.Short()))
	return nil
}
