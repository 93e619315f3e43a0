package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/types"
	"github.com/revledger/revledger/internal/ui"
)

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Drive the approval workflow of a draft",
}

// approvalStep builds a subcommand for one approval transition.
func approvalStep(use, short, verb string, fn func(ctx context.Context, docID string, cmd *cobra.Command) (*types.Document, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <document-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fn(cmd.Context(), args[0], cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, doc)
			}
			fmt.Fprintf(out, "%s %s %s: approval %s\n", ui.RenderPassIcon(), verb, ui.RenderAccent(doc.ID), ui.RenderApprovalStatus(doc.ApprovalStatus))
			return nil
		},
	}
}

var (
	approvalRequestCmd = approvalStep("request", "Submit a draft for approval", "Submitted",
		func(ctx context.Context, id string, _ *cobra.Command) (*types.Document, error) {
			return rt.Engine.RequestApproval(ctx, id, actor)
		})
	approvalApproveCmd = approvalStep("approve", "Approve a pending draft", "Approved",
		func(ctx context.Context, id string, _ *cobra.Command) (*types.Document, error) {
			return rt.Engine.Approve(ctx, id, actor)
		})
	approvalRejectCmd = approvalStep("reject", "Reject a pending draft", "Rejected",
		func(ctx context.Context, id string, cmd *cobra.Command) (*types.Document, error) {
			reason, _ := cmd.Flags().GetString("reason")
			return rt.Engine.Reject(ctx, id, actor, reason)
		})
	approvalResetCmd = approvalStep("reset", "Return a rejected or approved draft to pending", "Reset",
		func(ctx context.Context, id string, _ *cobra.Command) (*types.Document, error) {
			return rt.Engine.ResetApproval(ctx, id, actor)
		})
)

var approvalRequiredCmd = &cobra.Command{
	Use:   "required [true|false]",
	Short: "Show or set whether an organization requires approval before issue",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		org, err := organizationFlag(cmd)
		if err != nil {
			return err
		}
		var settings *types.OrganizationSettings
		if len(args) == 0 {
			settings, err = rt.Engine.Settings(ctx, org, actor)
		} else {
			required, perr := strconv.ParseBool(args[0])
			if perr != nil {
				return fmt.Errorf("invalid value %q: want true or false", args[0])
			}
			settings, err = rt.Engine.SetApprovalRequired(ctx, org, actor, required)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, settings)
		}
		state := ui.RenderMuted("not required")
		if settings.ApprovalRequired {
			state = ui.RenderWarn("required")
		}
		fmt.Fprintf(out, "Approval for %s: %s\n", ui.RenderAccent(settings.OrganizationID), state)
		return nil
	},
}

func init() {
	approvalRejectCmd.Flags().String("reason", "", "Why the draft is rejected (required)")
	approvalRequiredCmd.Flags().String("org", "", "Organization (default: the actor's)")
	approvalCmd.AddCommand(approvalRequestCmd, approvalApproveCmd, approvalRejectCmd, approvalResetCmd, approvalRequiredCmd)
	rootCmd.AddCommand(approvalCmd)
}
