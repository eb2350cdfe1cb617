package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push <remote>",
	Short: "Push the branch to a remote",
	Long: "Send the branch to a remote repository or OCI registry. Only " +
		"fast-forwards are accepted; pull first when the remote has moved.",
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	rem, err := newRemote(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "pushing %s to %s...\n", refColor(branchName()), args[0])

	head, err := repo.Push(cmd.Context(), rem, branchName())
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "done: %s\n", keyColor(head.Short()))
	return nil
}
