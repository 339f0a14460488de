package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/client"
	"github.com/telhawk-systems/telhawk-investigate/cli/pkg/output"
)

var investigationsCmd = &cobra.Command{
	Use:     "investigations",
	Aliases: []string{"inv"},
	Short:   "Investigation management",
	Long:    "Link entities into investigations, analyze their connections and manage their lifecycle",
}

var investigationsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List investigations",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		entityType, _ := cmd.Flags().GetString("entity-type")

		invs, pagination, err := apiClient(cmd).ListInvestigations(cmd.Context(), client.ListOptions{
			Page:       page,
			Limit:      limit,
			Status:     status,
			Priority:   priority,
			EntityType: entityType,
		})
		if err != nil {
			return fmt.Errorf("failed to list investigations: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), invs); handled {
			return err
		}
		if len(invs) == 0 {
			output.Info("No investigations found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Code", "Title", "Status", "Priority", "Entities", "Risk", "Updated"})
		for _, inv := range invs {
			table.AddRow([]string{
				inv.ID,
				inv.HumanCode,
				truncate(inv.Title, 40),
				inv.Status,
				inv.Priority,
				fmt.Sprintf("%d", len(inv.Entities)),
				fmt.Sprintf("%.2f", inv.RiskAssessment.OverallRisk),
				inv.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		table.Render()

		if pagination != nil && pagination.TotalPages > 0 {
			output.Info("\nPage %d of %d (%d total)", pagination.Page, pagination.TotalPages, pagination.Total)
		}
		return nil
	},
}

var investigationsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show an investigation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := apiClient(cmd).GetInvestigation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get investigation: %w", err)
		}
		if handled, err := output.Structured(outputFormat(cmd), inv); handled {
			return err
		}
		printInvestigation(inv)
		return nil
	},
}

var investigationsLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link entities into an investigation",
	Long: `Link one or more entities. If any of them already belongs to an existing
investigation the entities are merged into it, otherwise a new investigation
is created.

Examples:
  invctl investigations link --entity wallet:0xabc --entity ip:203.0.113.7 --title "Giveaway scam"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringArray("entity")
		entities, err := parseEntities(specs)
		if err != nil {
			return err
		}

		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		createdBy, _ := cmd.Flags().GetString("created-by")

		inv, err := apiClient(cmd).LinkEntities(cmd.Context(), &client.LinkRequest{
			Entities: entities,
			Metadata: client.LinkMetadata{
				Title:       title,
				Description: description,
				Priority:    priority,
				Tags:        tags,
				CreatedBy:   createdBy,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to link entities: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), inv); handled {
			return err
		}
		output.Success("Linked %d entities into %s (%s)", len(entities), inv.HumanCode, inv.ID)
		output.Info("Connections: %d  Risk: %.2f", len(inv.Connections), inv.RiskAssessment.OverallRisk)
		return nil
	},
}

var investigationsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update investigation fields or status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.UpdateRequest{}
		flags := cmd.Flags()
		for name, dst := range map[string]**string{
			"title":       &req.Title,
			"description": &req.Description,
			"status":      &req.Status,
			"priority":    &req.Priority,
			"resolution":  &req.Resolution,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				*dst = &v
			}
		}
		if flags.Changed("tag") {
			tags, _ := flags.GetStringSlice("tag")
			req.Tags = &tags
		}
		req.Notes, _ = flags.GetString("notes")

		inv, err := apiClient(cmd).UpdateInvestigation(cmd.Context(), args[0], req)
		if err != nil {
			return fmt.Errorf("failed to update investigation: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), inv); handled {
			return err
		}
		output.Success("Updated %s (status: %s)", inv.HumanCode, inv.Status)
		return nil
	},
}

var investigationsAnalyzeCmd = &cobra.Command{
	Use:   "analyze ID",
	Short: "Re-run connection analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient(cmd).AnalyzeInvestigation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to analyze investigation: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), res); handled {
			return err
		}
		output.Success("Found %d connections, overall risk %.2f", res.TotalConnections, res.RiskAssessment.OverallRisk)

		types := make([]string, 0, len(res.ConnectionTypesBreakdown))
		for t := range res.ConnectionTypesBreakdown {
			types = append(types, t)
		}
		sort.Strings(types)
		table := output.NewTable([]string{"Type", "Count"})
		for _, t := range types {
			table.AddRow([]string{t, fmt.Sprintf("%d", res.ConnectionTypesBreakdown[t])})
		}
		table.Render()

		for _, f := range res.RiskAssessment.RiskFactors {
			output.Warn("%s", f)
		}
		return nil
	},
}

var investigationsEscalateCmd = &cobra.Command{
	Use:   "escalate ID",
	Short: "Escalate an investigation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		inv, err := apiClient(cmd).EscalateInvestigation(cmd.Context(), args[0], reason)
		if err != nil {
			return fmt.Errorf("failed to escalate investigation: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), inv); handled {
			return err
		}
		output.Success("Escalated %s (priority: %s)", inv.HumanCode, inv.Priority)
		return nil
	},
}

var investigationsVerifyCmd = &cobra.Command{
	Use:   "verify ID",
	Short: "Verify the investigation's signed audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient(cmd).VerifyAudit(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to verify audit trail: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), res); handled {
			return err
		}
		if res.Valid {
			output.Success("Audit trail intact (%d entries)", res.Entries)
			return nil
		}
		if res.BrokenAt != nil {
			output.Error("Audit trail broken at entry %d of %d", *res.BrokenAt, res.Entries)
		}
		return fmt.Errorf("audit trail of %s failed verification", args[0])
	},
}

func printInvestigation(inv *client.Investigation) {
	output.Info("%s  %s", inv.HumanCode, inv.Title)
	fmt.Printf("ID:        %s\n", inv.ID)
	fmt.Printf("Status:    %s\n", inv.Status)
	fmt.Printf("Priority:  %s\n", inv.Priority)
	fmt.Printf("Risk:      %.2f\n", inv.RiskAssessment.OverallRisk)
	if inv.Resolution != "" {
		fmt.Printf("Resolved:  %s\n", inv.Resolution)
	}
	if len(inv.Tags) > 0 {
		fmt.Printf("Tags:      %s\n", strings.Join(inv.Tags, ", "))
	}
	fmt.Printf("Created:   %s by %s\n", inv.CreatedAt.Format("2006-01-02 15:04"), inv.CreatedBy)
	fmt.Println()

	entities := output.NewTable([]string{"Type", "Value", "Verified"})
	for _, e := range inv.Entities {
		entities.AddRow([]string{e.Type, e.Value, fmt.Sprintf("%t", e.Verified)})
	}
	entities.Render()

	if len(inv.Connections) > 0 {
		fmt.Println()
		conns := output.NewTable([]string{"Type", "From", "To", "Strength"})
		for _, c := range inv.Connections {
			conns.AddRow([]string{
				c.Type,
				c.Entity1.Type + ":" + c.Entity1.Value,
				c.Entity2.Type + ":" + c.Entity2.Value,
				fmt.Sprintf("%.2f", c.Strength),
			})
		}
		conns.Render()
	}

	for _, f := range inv.RiskAssessment.RiskFactors {
		output.Warn("%s", f)
	}
}

// parseEntities turns "type:value" flags into entities. Values may contain
// colons.
func parseEntities(specs []string) ([]client.Entity, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --entity is required")
	}
	out := make([]client.Entity, 0, len(specs))
	for _, s := range specs {
		typ, value, ok := strings.Cut(s, ":")
		if !ok || typ == "" || value == "" {
			return nil, fmt.Errorf("invalid entity %q: expected type:value", s)
		}
		out = append(out, client.Entity{Type: strings.ToLower(typ), Value: value})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(investigationsCmd)
	investigationsCmd.AddCommand(
		investigationsListCmd,
		investigationsGetCmd,
		investigationsLinkCmd,
		investigationsUpdateCmd,
		investigationsAnalyzeCmd,
		investigationsEscalateCmd,
		investigationsVerifyCmd,
	)

	investigationsListCmd.Flags().Int("page", 1, "page number")
	investigationsListCmd.Flags().Int("limit", 50, "results per page (max 100)")
	investigationsListCmd.Flags().String("status", "", "filter by status")
	investigationsListCmd.Flags().String("priority", "", "filter by priority")
	investigationsListCmd.Flags().String("entity-type", "", "filter by entity type")

	investigationsLinkCmd.Flags().StringArrayP("entity", "e", nil, "entity as type:value (repeatable)")
	investigationsLinkCmd.Flags().String("title", "", "title for a new investigation")
	investigationsLinkCmd.Flags().String("description", "", "description for a new investigation")
	investigationsLinkCmd.Flags().String("priority", "", "priority: low, medium, high, critical")
	investigationsLinkCmd.Flags().StringSlice("tag", nil, "tags (comma separated or repeated)")
	investigationsLinkCmd.Flags().String("created-by", "", "creator recorded on the investigation")
	_ = investigationsLinkCmd.MarkFlagRequired("entity")

	investigationsUpdateCmd.Flags().String("title", "", "new title")
	investigationsUpdateCmd.Flags().String("description", "", "new description")
	investigationsUpdateCmd.Flags().String("status", "", "new status: active, under_review, escalated, completed, closed, archived")
	investigationsUpdateCmd.Flags().String("priority", "", "new priority")
	investigationsUpdateCmd.Flags().StringSlice("tag", nil, "replace tags")
	investigationsUpdateCmd.Flags().String("resolution", "", "resolution when closing")
	investigationsUpdateCmd.Flags().String("notes", "", "note recorded in the audit trail")

	investigationsEscalateCmd.Flags().String("reason", "", "why the investigation is escalated")
	_ = investigationsEscalateCmd.MarkFlagRequired("reason")
}
