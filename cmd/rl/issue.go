package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/ui"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <document-id>",
	Short: "Report every reason a draft cannot be issued yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reasons, err := rt.Engine.Preflight(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, map[string]interface{}{
				"document_id": args[0],
				"ready":       len(reasons) == 0,
				"reasons":     reasons,
			})
		}
		if len(reasons) == 0 {
			fmt.Fprintf(out, "%s %s is ready to issue\n", ui.RenderPassIcon(), ui.RenderAccent(args[0]))
			return nil
		}
		fmt.Fprintf(out, "%s %s cannot be issued yet:\n", ui.RenderWarnIcon(), ui.RenderAccent(args[0]))
		printReasons(out, reasons)
		return nil
	},
}

var issueCmd = &cobra.Command{
	Use:   "issue <document-id>",
	Short: "Issue a draft, superseding the previously issued revision",
	Long: `Issues a draft after checking every issuance precondition. The content
of the document is frozen from then on. When the lineage already has an
issued revision it is superseded in the same transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		note, _ := cmd.Flags().GetString("note")

		if !assumeYes && !jsonOutput && ui.IsInteractive() {
			reasons, err := rt.Engine.Preflight(ctx, args[0], actor)
			if err != nil {
				return err
			}
			if len(reasons) == 0 {
				ok, err := confirm(fmt.Sprintf("Issue %s? Its content cannot be edited afterwards.", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Issue cancelled.")
					return nil
				}
			}
		}

		res, err := rt.Engine.Issue(ctx, args[0], actor, note)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, res)
		}
		fmt.Fprintf(out, "%s Issued %s (v%d)\n", ui.RenderPassIcon(), ui.RenderAccent(res.Document.ID), res.Document.VersionNumber)
		fmt.Fprintf(out, "  %s\n", ui.RenderMuted("content hash "+res.ContentHash))
		if res.Superseded != nil {
			fmt.Fprintf(out, "  Superseded %s (v%d)\n", res.Superseded.ID, res.Superseded.VersionNumber)
		}
		return nil
	},
}

var reviseCmd = &cobra.Command{
	Use:   "revise <lineage-id>",
	Short: "Start a new draft revision from the issued revision of a lineage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		res, err := rt.Engine.CreateRevision(cmd.Context(), args[0], actor, note)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, res)
		}
		fmt.Fprintf(out, "%s Created revision %s (v%d) from %s\n",
			ui.RenderPassIcon(), ui.RenderAccent(res.Document.ID), res.Document.VersionNumber, res.SourceID)
		if n := len(res.CarriedActions); n > 0 {
			fmt.Fprintf(out, "  Carried forward %d open action(s)\n", n)
		}
		return nil
	},
}

var artifactCmd = &cobra.Command{
	Use:   "artifact <document-id> <ref>",
	Short: "Record the rendered artifact of an issued document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := rt.Engine.RecordArtifact(cmd.Context(), args[0], actor, args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, doc)
		}
		fmt.Fprintf(out, "%s Recorded artifact for %s: %s\n", ui.RenderPassIcon(), ui.RenderAccent(doc.ID), doc.ArtifactRef)
		return nil
	},
}

// confirm asks a yes/no question. An aborted prompt counts as no.
func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Issue").
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func init() {
	issueCmd.Flags().StringP("note", "m", "", "Change note recorded with the issue")
	reviseCmd.Flags().StringP("note", "m", "", "Reason for the revision")
	rootCmd.AddCommand(preflightCmd, issueCmd, reviseCmd, artifactCmd)
}
