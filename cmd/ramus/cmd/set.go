package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus"
)

var setCmd = &cobra.Command{
	Use:   "set <path> [value]",
	Short: "Bind a value at a path",
	Long:  "Bind a value at a path and commit. The value is read from the argument, or from stdin when omitted or \"-\".",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSet,
}

func init() {
	setCmd.Flags().String("mode", "", "octal metadata for the value (default 644)")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 2 && args[1] != "-" {
		data = []byte(args[1])
	} else {
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return err
		}
	}

	v := ramus.Value{Meta: ramus.DefaultMeta, Data: data}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		m, err := strconv.ParseUint(mode, 8, 32)
		if err != nil {
			return fmt.Errorf("invalid mode %q: %w", mode, err)
		}
		v.Meta = ramus.Meta(m)
	}

	head, err := store.SetValue(cmd.Context(), args[0], v)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", refColor(store.Name()), keyColor(head.Short()))
	return nil
}
