package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/client"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "invctl",
	Short: "TelHawk investigation CLI",
	Long: `invctl is the command-line interface for the TelHawk investigation service.

Link entities into investigations, run connection analysis, escalate and
close cases, and build or export evidence timelines from your terminal.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.invctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("server", "", "investigate service URL (overrides profile)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (overrides profile)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// apiClient builds a client from the active profile, letting --server and
// --token win.
func apiClient(cmd *cobra.Command) *client.Client {
	profile, _ := cmd.Flags().GetString("profile")
	serverURL, token := cfg.Resolve(profile)

	if s, _ := cmd.Flags().GetString("server"); s != "" {
		serverURL = s
	}
	if t, _ := cmd.Flags().GetString("token"); t != "" {
		token = t
	}
	return client.New(serverURL, token)
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}
