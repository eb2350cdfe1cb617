package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show branch history",
	Long:  "Show commits reachable from the branch head along first parents, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runLog,
}

func init() {
	logCmd.Flags().IntP("limit", "n", 0, "maximum number of commits (0 for all)")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.History(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("(no commits)")
		return nil
	}
	for _, rec := range records {
		marker := ""
		if len(rec.Commit.Parents) > 1 {
			marker = " (merge)"
		}
		fmt.Printf("%s\t%s\t%s\t%s%s\n",
			keyColor(rec.Key.Short()),
			rec.Commit.Info.Time.Format(time.RFC3339),
			rec.Commit.Info.Author,
			rec.Commit.Info.Message,
			marker)
	}
	return nil
}
