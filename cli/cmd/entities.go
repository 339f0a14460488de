package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/pkg/output"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Entity graph queries",
}

var entitiesNeighborsCmd = &cobra.Command{
	Use:   "neighbors TYPE:VALUE",
	Short: "Entities connected to an entity across investigations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minStrength, _ := cmd.Flags().GetFloat64("min-strength")
		limit, _ := cmd.Flags().GetInt("limit")

		neighbors, err := apiClient(cmd).Neighbors(cmd.Context(), args[0], minStrength, limit)
		if err != nil {
			return fmt.Errorf("failed to query neighbors: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), neighbors); handled {
			return err
		}
		if len(neighbors) == 0 {
			output.Info("No connected entities")
			return nil
		}

		table := output.NewTable([]string{"Entity", "Connection", "Strength", "Investigation"})
		for _, n := range neighbors {
			table.AddRow([]string{n.Key, n.Type, fmt.Sprintf("%.2f", n.Strength), n.InvestigationID})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.AddCommand(entitiesNeighborsCmd)

	entitiesNeighborsCmd.Flags().Float64("min-strength", 0, "minimum connection strength (0-1)")
	entitiesNeighborsCmd.Flags().Int("limit", 25, "maximum neighbors (max 100)")
}
