package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Read a slice into the object store",
	Long: "Add the objects of a slice, read from the file or stdin. Branch " +
		"heads never move on import; merge a printed head to pick it up.",
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}

	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	slice, err := ramus.DecodeSlice(in)
	if err != nil {
		return err
	}
	if err := repo.Import(cmd.Context(), slice); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "imported %d objects\n", slice.Len())
	for _, h := range slice.Heads() {
		fmt.Printf("%s\n", keyColor(h.String()))
	}
	return nil
}
