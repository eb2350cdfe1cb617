package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List entries under a path",
	Long:  "List the entries of the tree node at a path in insertion order.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	entries, err := store.List(cmd.Context(), path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("(no entries)")
		return nil
	}
	for _, e := range entries {
		if e.Kind == ramus.KindNode {
			fmt.Printf("%s\t%s\n", dirColor(e.Step+"/"), e.Key.Short())
		} else {
			fmt.Printf("%s\t%o\t%s\n", e.Step, uint32(e.Meta), e.Key.Short())
		}
	}
	return nil
}
