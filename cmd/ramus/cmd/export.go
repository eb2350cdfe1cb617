package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the branch as a slice",
	Long: "Write the full closure of the branch head as a slice, to stdout " +
		"or the file given with --output. Use --min to bound the slice below " +
		"by commits the receiver already has.",
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringSlice("min", nil, "commits the receiver already has")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	head, ok, err := repo.Branches().Read(ctx, branchName())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: nothing to export", branchName())
	}

	var min []ramus.Key
	mins, _ := cmd.Flags().GetStringSlice("min")
	for _, m := range mins {
		k, err := ramus.ParseKey(m)
		if err != nil {
			return err
		}
		min = append(min, k)
	}

	slice, err := repo.Export(ctx, []ramus.Key{head}, min)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := slice.Encode(out); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d objects from %s\n", slice.Len(), refColor(branchName()))
	return nil
}
