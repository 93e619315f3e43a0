package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/types"
	"github.com/revledger/revledger/internal/ui"
)

var actionCmd = &cobra.Command{
	Use:     "action",
	Aliases: []string{"actions"},
	Short:   "Manage corrective actions",
}

var actionAddCmd = &cobra.Command{
	Use:   "add <document-id> <title>",
	Short: "Raise a corrective action on a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		description, _ := flags.GetString("description")
		priority, _ := flags.GetInt("priority")
		owner, _ := flags.GetString("owner")
		module, _ := flags.GetString("module")
		notes, _ := flags.GetString("notes")
		a, err := rt.Engine.AddAction(cmd.Context(), actor, lifecycle.NewAction{
			DocumentID:  args[0],
			Title:       args[1],
			Description: description,
			Priority:    priority,
			OwnerID:     owner,
			ModuleKey:   module,
			Notes:       notes,
		})
		if err != nil {
			return err
		}
		return printAction(cmd.OutOrStdout(), "Added", a)
	},
}

var actionCloseCmd = &cobra.Command{
	Use:   "close <action-id>",
	Short: "Close an action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		a, err := rt.Engine.CloseAction(cmd.Context(), args[0], actor, note)
		if err != nil {
			return err
		}
		return printAction(cmd.OutOrStdout(), "Closed", a)
	},
}

var actionReopenCmd = &cobra.Command{
	Use:   "reopen <action-id>",
	Short: "Reopen a closed action (organization admins only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		a, err := rt.Engine.ReopenAction(cmd.Context(), args[0], actor, note)
		if err != nil {
			return err
		}
		return printAction(cmd.OutOrStdout(), "Reopened", a)
	},
}

var actionStatusCmd = &cobra.Command{
	Use:       "status <action-id> <open|in_progress|deferred|closed>",
	Short:     "Move an action to another status",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(types.ActionOpen), string(types.ActionInProgress), string(types.ActionDeferred), string(types.ActionClosed)},
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		a, err := rt.Engine.SetActionStatus(cmd.Context(), args[0], actor, types.ActionStatus(args[1]), note)
		if err != nil {
			return err
		}
		return printAction(cmd.OutOrStdout(), "Updated", a)
	},
}

var actionListCmd = &cobra.Command{
	Use:   "list <document-id>",
	Short: "List the actions of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actions, err := rt.Engine.ListActions(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, actions)
		}
		if len(actions) == 0 {
			fmt.Fprintln(out, "No actions.")
			return nil
		}
		for _, a := range actions {
			owner := a.OwnerID
			if owner == "" {
				owner = "-"
			}
			fmt.Fprintf(out, "%s  P%d  %-20s %-10s %s\n", ui.RenderAccent(a.ID), a.Priority, ui.RenderActionStatus(a.Status), owner, a.Title)
		}
		return nil
	},
}

func printAction(w io.Writer, verb string, a *types.Action) error {
	if jsonOutput {
		return outputJSON(w, a)
	}
	fmt.Fprintf(w, "%s %s action %s: %s [%s]\n", ui.RenderPassIcon(), verb, ui.RenderAccent(a.ID), a.Title, ui.RenderActionStatus(a.Status))
	return nil
}

func init() {
	actionAddCmd.Flags().StringP("description", "d", "", "Action description")
	actionAddCmd.Flags().IntP("priority", "p", 2, "Priority (0-4, 0 is critical)")
	actionAddCmd.Flags().String("owner", "", "Owner actor id")
	actionAddCmd.Flags().String("module", "", "Module the action relates to")
	actionAddCmd.Flags().String("notes", "", "Working notes carried into later revisions")
	for _, c := range []*cobra.Command{actionCloseCmd, actionReopenCmd, actionStatusCmd} {
		c.Flags().String("note", "", "Note recorded in the action history")
	}
	actionCmd.AddCommand(actionAddCmd, actionCloseCmd, actionReopenCmd, actionStatusCmd, actionListCmd)
	rootCmd.AddCommand(actionCmd)
}
