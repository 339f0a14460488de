package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/seeder"
	"github.com/telhawk-systems/telhawk-investigate/cli/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load synthetic records into the service",
	Long: `Generate reports, evidence, escalations and risk snapshots and post them
to the records endpoint so timelines and correlation have data to work with.

Configuration cascade (priority order):
  1. Command-line flags
  2. SEED_* environment variables
  3. --file seed.yaml
  4. Built-in defaults

Examples:
  invctl seed --entities 50 --seed 7
  invctl seed --file ./seed.yaml --dry-run -o yaml`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	opts, err := seeder.LoadOptions(file)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("entities") {
		opts.Entities, _ = flags.GetInt("entities")
	}
	if flags.Changed("reports") {
		opts.ReportsPerEntity, _ = flags.GetInt("reports")
	}
	if flags.Changed("evidence") {
		opts.EvidencePerEntity, _ = flags.GetInt("evidence")
	}
	if flags.Changed("time-spread") {
		opts.TimeSpread, _ = flags.GetDuration("time-spread")
	}
	if flags.Changed("case-prefix") {
		opts.CasePrefix, _ = flags.GetString("case-prefix")
	}
	if flags.Changed("batch-size") {
		opts.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("seed") {
		opts.Seed, _ = flags.GetInt64("seed")
	}

	batch, err := seeder.Generate(opts)
	if err != nil {
		return err
	}

	if dryRun, _ := flags.GetBool("dry-run"); dryRun {
		if handled, err := output.Structured(outputFormat(cmd), batch); handled {
			return err
		}
		output.Info("Would send %d reports, %d evidence, %d escalations, %d risk snapshots",
			len(batch.Reports), len(batch.Evidence), len(batch.Escalations), len(batch.RiskSnapshots))
		return nil
	}

	start := time.Now()
	res, err := seeder.Run(cmd.Context(), apiClient(cmd), batch, opts.BatchSize)
	if err != nil {
		output.Warn("Partial load: %d reports, %d evidence accepted", res.Reports, res.Evidence)
		return fmt.Errorf("seeding failed: %w", err)
	}

	if handled, err := output.Structured(outputFormat(cmd), res); handled {
		return err
	}
	output.Success("Loaded %d reports, %d evidence, %d escalations, %d risk snapshots in %s",
		res.Reports, res.Evidence, res.Escalations, res.RiskSnapshots, time.Since(start).Round(time.Millisecond))
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("file", "", "seeder YAML file")
	seedCmd.Flags().Int("entities", 0, "number of wallets to generate")
	seedCmd.Flags().Int("reports", 0, "reports per wallet")
	seedCmd.Flags().Int("evidence", 0, "evidence items per wallet")
	seedCmd.Flags().Duration("time-spread", 0, "spread records over this window ending now")
	seedCmd.Flags().String("case-prefix", "", "case id prefix")
	seedCmd.Flags().Int("batch-size", 0, "records per request")
	seedCmd.Flags().Int64("seed", 0, "random seed for reproducible data (0 = random)")
	seedCmd.Flags().Bool("dry-run", false, "generate without sending")
}
