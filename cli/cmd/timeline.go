package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/client"
	"github.com/telhawk-systems/telhawk-investigate/cli/pkg/output"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Evidence timelines",
	Long:  "Build, correlate and export chronological timelines of reports, evidence, escalations and access activity",
}

var timelineGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Timeline for a case or entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetString("case")
		entity, _ := cmd.Flags().GetString("entity")
		if caseID == "" && entity == "" {
			return fmt.Errorf("one of --case or --entity is required")
		}

		tl, err := apiClient(cmd).Timeline(cmd.Context(), caseID, entity)
		if err != nil {
			return fmt.Errorf("failed to build timeline: %w", err)
		}
		return renderTimeline(cmd, tl)
	},
}

var timelineLinkedCmd = &cobra.Command{
	Use:   "linked ENTITY [ENTITY...]",
	Short: "Merged timeline across several entities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		investigationID, _ := cmd.Flags().GetString("investigation")

		tl, err := apiClient(cmd).LinkedTimeline(cmd.Context(), &client.LinkedTimelineRequest{
			Entities:        args,
			InvestigationID: investigationID,
		})
		if err != nil {
			return fmt.Errorf("failed to build linked timeline: %w", err)
		}
		return renderTimeline(cmd, tl)
	},
}

var timelineInvestigationCmd = &cobra.Command{
	Use:   "investigation ID",
	Short: "Linked timeline over an investigation's entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, err := apiClient(cmd).InvestigationTimeline(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to build investigation timeline: %w", err)
		}
		return renderTimeline(cmd, tl)
	},
}

var timelineExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a timeline as JSON or CSV",
	Long: `Export a case or entity timeline. The file is written to --out, or to
the server-suggested filename when --out is omitted. Use --out - for stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetString("case")
		entity, _ := cmd.Flags().GetString("entity")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if caseID == "" && entity == "" {
			return fmt.Errorf("one of --case or --entity is required")
		}

		exp, err := apiClient(cmd).ExportTimeline(cmd.Context(), caseID, entity, format)
		if err != nil {
			return fmt.Errorf("failed to export timeline: %w", err)
		}

		if out == "-" {
			_, err := os.Stdout.Write(exp.Body)
			return err
		}
		if out == "" {
			out = exp.Filename
		}
		if out == "" {
			out = "timeline." + format
		}
		if err := os.WriteFile(out, exp.Body, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		output.Success("Wrote %d bytes to %s", len(exp.Body), out)
		return nil
	},
}

func renderTimeline(cmd *cobra.Command, tl *client.Timeline) error {
	if handled, err := output.Structured(outputFormat(cmd), tl); handled {
		return err
	}
	if len(tl.Timeline) == 0 {
		output.Info("No events found")
		return nil
	}

	table := output.NewTable([]string{"#", "Time", "Type", "Priority", "Entity", "Description"})
	for _, ev := range tl.Timeline {
		entity := ev.Entity
		if ev.SourceEntity != "" {
			entity = ev.SourceEntity
		}
		table.AddRow([]string{
			fmt.Sprintf("%d", ev.Sequence),
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			ev.Type,
			ev.Priority,
			truncate(entity, 24),
			truncate(ev.Description, 60),
		})
	}
	table.Render()

	summary := fmt.Sprintf("\n%d events", tl.Summary.TotalEvents)
	if tl.Summary.Timespan != nil {
		summary += " over " + tl.Summary.Timespan.HumanDuration
	}
	output.Info("%s", summary)

	if len(tl.CrossEntityConnections) > 0 {
		fmt.Println()
		conns := output.NewTable([]string{"Connection", "Entities", "Events", "Gap (s)"})
		for _, c := range tl.CrossEntityConnections {
			conns.AddRow([]string{
				c.Type,
				c.Entity1 + " / " + c.Entity2,
				strings.Join([]string{c.Event1, c.Event2}, " / "),
				fmt.Sprintf("%.0f", c.TimeDiffSeconds),
			})
		}
		conns.Render()
	}
	return nil
}

func init() {
	rootCmd.AddCommand(timelineCmd)
	timelineCmd.AddCommand(timelineGetCmd, timelineLinkedCmd, timelineInvestigationCmd, timelineExportCmd)

	timelineGetCmd.Flags().String("case", "", "case id")
	timelineGetCmd.Flags().String("entity", "", "entity value")

	timelineLinkedCmd.Flags().String("investigation", "", "investigation id to attach to the result")

	timelineExportCmd.Flags().String("case", "", "case id")
	timelineExportCmd.Flags().String("entity", "", "entity value")
	timelineExportCmd.Flags().String("format", "json", "export format: json, csv")
	timelineExportCmd.Flags().String("out", "", "output file, - for stdout")
}
