package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/ramusdb/ramus/internal/kv"
	"github.com/ramusdb/ramus/internal/kvserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repository over HTTP",
	Long: "Expose the repository's objects, branches, and slice exchange " +
		"over HTTP, for other repositories to use as a backend or remote. " +
		"Storage is the local repository directory unless DynamoDB tables " +
		"are given, which lets several servers share one store.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8420", "listen address")
	serveCmd.Flags().String("dynamo-objects", "", "DynamoDB object table (serve from DynamoDB instead of disk)")
	serveCmd.Flags().String("dynamo-branches", "", "DynamoDB branch table")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, branches, err := openServeBackends(cmd)
	if err != nil {
		return err
	}
	handler, err := kvserver.New(store, branches, nil)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-cmd.Context().Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	source := storeDir()
	if table, _ := cmd.Flags().GetString("dynamo-objects"); table != "" {
		source = "dynamodb:" + table
	}
	fmt.Fprintf(os.Stderr, "serving %s on %s\n", source, addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openServeBackends(cmd *cobra.Command) (kv.Store, kv.Branches, error) {
	objects, _ := cmd.Flags().GetString("dynamo-objects")
	branches, _ := cmd.Flags().GetString("dynamo-branches")
	if objects == "" && branches == "" {
		return kv.OpenDisk(storeDir())
	}
	cfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	return kv.OpenDynamo(dynamodb.NewFromConfig(cfg), kv.DynamoConfig{
		ObjectTable: objects,
		BranchTable: branches,
	})
}
