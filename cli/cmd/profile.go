package cmd

import (
	"sort"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/config"
	"github.com/telhawk-systems/telhawk-investigate/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		if serverURL == "" {
			serverURL = config.DefaultServerURL
		}

		if err := cfg.SaveProfile(args[0], serverURL, token); err != nil {
			return err
		}
		output.Success("Profile %s now points at %s", args[0], serverURL)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if handled, err := output.Structured(outputFormat(cmd), cfg.Profiles); handled {
			return err
		}
		if len(cfg.Profiles) == 0 {
			output.Info("No profiles configured")
			return nil
		}

		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		table := output.NewTable([]string{"", "NAME", "SERVER", "TOKEN"})
		for _, name := range names {
			p := cfg.Profiles[name]
			current, token := "", "no"
			if name == cfg.CurrentProfile {
				current = "*"
			}
			if p.Token != "" {
				token = "yes"
			}
			table.AddRow([]string{current, name, p.ServerURL, token})
		}
		table.Render()
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		output.Success("Removed profile %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd, profileListCmd, profileRemoveCmd)
}
