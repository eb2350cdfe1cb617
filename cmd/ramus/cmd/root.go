package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramusdb/ramus"
	"github.com/ramusdb/ramus/internal/remote"
)

var rootCmd = &cobra.Command{
	Use:   "ramus",
	Short: "Branchable content-addressed data store",
	Long:  "CLI for a git-like data store: branches, commits, merges, and sync over HTTP or OCI registries.",
}

var (
	keyColor = color.New(color.FgYellow).SprintFunc()
	dirColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	refColor = color.New(color.FgGreen).SprintFunc()
	addColor = color.New(color.FgGreen).SprintFunc()
	delColor = color.New(color.FgRed).SprintFunc()
	modColor = color.New(color.FgYellow).SprintFunc()
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/ramus/config.yaml)")
	rootCmd.PersistentFlags().String("store-dir", "", "repository directory (default: ~/.local/share/ramus)")
	rootCmd.PersistentFlags().StringP("branch", "b", "", "branch to operate on (default: main)")
	rootCmd.PersistentFlags().String("username", "", "registry username (default: keychain)")
	rootCmd.PersistentFlags().String("password", "", "registry password")

	viper.BindPFlag("store_dir", rootCmd.PersistentFlags().Lookup("store-dir"))
	viper.BindPFlag("branch", rootCmd.PersistentFlags().Lookup("branch"))
	viper.BindPFlag("username", rootCmd.PersistentFlags().Lookup("username"))
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RAMUS")
	viper.AutomaticEnv()
	viper.SetDefault("store_dir", ramus.DefaultDir())
	viper.SetDefault("branch", "main")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ramus")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "ramus")
	}
	return ".ramus"
}

func storeDir() string   { return viper.GetString("store_dir") }
func branchName() string { return viper.GetString("branch") }

func openRepo() (*ramus.Repo, error) {
	return ramus.Open(storeDir())
}

func openStore() (*ramus.Store, error) {
	repo, err := openRepo()
	if err != nil {
		return nil, err
	}
	return repo.Branch(branchName()), nil
}

// newRemote picks the transport from the reference: http(s) URLs talk
// to a served repository, anything else is an OCI repository.
func newRemote(ref string) (ramus.Remote, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return remote.NewHTTPRemote(ref), nil
	}
	var auth remote.Authenticator = remote.KeychainAuthenticator{}
	if u := viper.GetString("username"); u != "" {
		auth = remote.StaticAuthenticator{
			Username: u,
			Password: viper.GetString("password"),
		}
	}
	return remote.NewOCIRemote(ref, auth)
}
