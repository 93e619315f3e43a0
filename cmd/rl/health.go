package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/timeparsing"
	"github.com/revledger/revledger/internal/types"
	"github.com/revledger/revledger/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:   "health [lineage-id]",
	Short: "Check the revision chain invariants of a lineage or organization",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		var reports []*types.LineageHealth
		switch {
		case len(args) == 1:
			h, err := rt.Engine.LifecycleHealth(ctx, args[0], actor)
			if err != nil {
				return err
			}
			reports = []*types.LineageHealth{h}
		case all:
			org, _ := cmd.Flags().GetString("org")
			var err error
			if reports, err = rt.Engine.HealthSweep(ctx, org, actor); err != nil {
				return err
			}
		default:
			return errors.New("pass a lineage id or --all")
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, reports)
		}
		unhealthy := 0
		for _, h := range reports {
			printHealth(out, h)
			if !h.Healthy {
				unhealthy++
			}
		}
		if len(reports) > 1 {
			fmt.Fprintln(out, ui.RenderSeparator())
			fmt.Fprintf(out, "%d lineage(s), %d unhealthy\n", len(reports), unhealthy)
		}
		return nil
	},
}

func printHealth(w io.Writer, h *types.LineageHealth) {
	icon := ui.RenderPassIcon()
	if !h.Healthy {
		icon = ui.RenderFailIcon()
	}
	fmt.Fprintf(w, "%s %s  v%d  issued=%d draft=%d superseded=%d\n",
		icon, ui.RenderAccent(h.LineageID), h.LatestVersion, h.IssuedCount, h.DraftCount, h.SupersededCount)
	for _, v := range h.Violations {
		fmt.Fprintf(w, "    %s\n", ui.RenderFail(v))
	}
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail of a document or lineage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		var filter types.AuditFilter
		filter.DocumentID, _ = flags.GetString("doc")
		filter.LineageID, _ = flags.GetString("lineage")
		filter.ActorID, _ = flags.GetString("by")
		filter.Limit, _ = flags.GetInt("limit")
		if t, _ := flags.GetString("type"); t != "" {
			filter.EventType = types.EventType(t)
			if !filter.EventType.IsValid() {
				return fmt.Errorf("unknown event type %q", t)
			}
		}
		if s, _ := flags.GetString("since"); s != "" {
			since, err := timeparsing.ParseRelativeTime(s, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			filter.Since = &since
		}

		events, err := rt.Engine.AuditHistory(cmd.Context(), actor, filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "%s  %-18s %s v%d by %s%s\n",
				ui.RenderMuted(e.OccurredAt.Local().Format("2006-01-02 15:04")),
				ui.RenderCategory(string(e.EventType)), e.DocumentID, e.RevisionNumber, e.ActorID, detailSuffix(e.Details))
		}
		return nil
	},
}

func detailSuffix(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	parts := make([]string, 0, len(details))
	for _, k := range []string{"action_id", "superseded_id", "source_id", "override", "change_note", "note"} {
		if v, ok := details[k]; ok && v != nil && v != "" {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + ui.RenderMuted(strings.Join(parts, " "))
}

func init() {
	healthCmd.Flags().Bool("all", false, "Sweep every lineage of the organization")
	healthCmd.Flags().String("org", "", "Organization to sweep (default: the actor's)")

	auditCmd.Flags().String("doc", "", "Document id")
	auditCmd.Flags().String("lineage", "", "Lineage id")
	auditCmd.Flags().String("by", "", "Only events by this actor")
	auditCmd.Flags().String("type", "", "Only events of this type")
	auditCmd.Flags().String("since", "", "Only events after this time (e.g. 7d, yesterday, 2026-01-02)")
	auditCmd.Flags().Int("limit", 0, "Maximum events to show")
	rootCmd.AddCommand(healthCmd, auditCmd)
}
