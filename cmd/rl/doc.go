package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/lifecycle"
	"github.com/revledger/revledger/internal/modules"
	"github.com/revledger/revledger/internal/types"
	"github.com/revledger/revledger/internal/ui"
)

var docCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"docs"},
	Short:   "Create, edit and inspect documents",
}

var docCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Start a new document lineage with a version 1 draft",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		if len(args) == 1 {
			title = args[0]
		}
		scope, _ := cmd.Flags().GetString("scope")
		org, err := organizationFlag(cmd)
		if err != nil {
			return err
		}
		doc, err := rt.Engine.CreateDocument(cmd.Context(), actor, lifecycle.NewDocument{
			OrganizationID: org,
			Title:          title,
			Scope:          scope,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, doc)
		}
		fmt.Fprintf(out, "%s Created document: %s\n", ui.RenderPassIcon(), ui.RenderAccent(doc.ID))
		fmt.Fprintf(out, "  Title: %s\n  Version: %d (%s)\n", doc.Title, doc.VersionNumber, ui.RenderIssueStatus(doc.IssueStatus))
		return nil
	},
}

type documentView struct {
	Document *types.Document         `json:"document"`
	Modules  []*types.ModuleInstance `json:"modules"`
	Actions  []*types.Action         `json:"actions"`
}

var docShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show a document with its modules and actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if published, _ := cmd.Flags().GetBool("published"); published {
			pub, err := rt.Engine.PublishedDocument(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(out, pub)
			}
			fmt.Fprintf(out, "%s v%d %s\n", ui.RenderAccent(pub.ID), pub.VersionNumber, ui.RenderIssueStatus(pub.IssueStatus))
			fmt.Fprintf(out, "  Title: %s\n", pub.Title)
			if pub.ArtifactRef != "" {
				fmt.Fprintf(out, "  Artifact: %s\n", pub.ArtifactRef)
			}
			return nil
		}

		doc, err := rt.Engine.GetDocument(ctx, actor, args[0])
		if err != nil {
			return err
		}
		mods, err := rt.Engine.ListModules(ctx, actor, doc.ID)
		if err != nil {
			return err
		}
		actions, err := rt.Engine.ListActions(ctx, actor, doc.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(out, documentView{Document: doc, Modules: mods, Actions: actions})
		}
		fmt.Fprint(out, ui.RenderMarkdown(ui.DocumentMarkdown(doc, mods, actions)))
		return nil
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest revision of every lineage in an organization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		org, _ := cmd.Flags().GetString("org")
		docs, err := rt.Engine.ListDocuments(cmd.Context(), actor, org)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}
		printDocuments(out, docs)
		return nil
	},
}

var docLineageCmd = &cobra.Command{
	Use:   "lineage <lineage-id>",
	Short: "List every revision of a lineage, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := rt.Engine.ListLineage(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, docs)
		}
		printDocuments(out, docs)
		return nil
	},
}

func printDocuments(w io.Writer, docs []*types.Document) {
	for _, d := range docs {
		fmt.Fprintf(w, "%s  v%-3d %-22s %-12s %s\n",
			ui.RenderAccent(d.ID), d.VersionNumber, ui.RenderIssueStatus(d.IssueStatus),
			ui.RenderApprovalStatus(d.ApprovalStatus), d.Title)
	}
}

var editCmd = &cobra.Command{
	Use:   "edit <document-id>",
	Short: "Change the title or scope of a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch types.DocumentPatch
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			patch.Title = &title
		}
		if cmd.Flags().Changed("scope") {
			scope, _ := cmd.Flags().GetString("scope")
			patch.Scope = &scope
		}
		doc, err := rt.Engine.Edit(cmd.Context(), args[0], actor, patch)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, doc)
		}
		fmt.Fprintf(out, "%s Updated %s\n", ui.RenderPassIcon(), ui.RenderAccent(doc.ID))
		return nil
	},
}

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Manage the form modules of a draft",
}

var moduleSetCmd = &cobra.Command{
	Use:   "set <document-id> <module-key> <json|@file|->",
	Short: "Create or replace a module payload",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(cmd.InOrStdin(), args[2])
		if err != nil {
			return err
		}
		mod, err := rt.Engine.SetModule(cmd.Context(), args[0], actor, args[1], payload)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, mod)
		}
		fmt.Fprintf(out, "%s Set module %s on %s\n", ui.RenderPassIcon(), ui.RenderAccent(mod.ModuleKey), mod.DocumentID)
		return nil
	},
}

var moduleRemoveCmd = &cobra.Command{
	Use:     "rm <document-id> <module-key>",
	Aliases: []string{"remove"},
	Short:   "Detach a module from a draft",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := rt.Engine.RemoveModule(cmd.Context(), args[0], actor, args[1]); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, map[string]string{"document_id": args[0], "module_key": args[1], "status": "removed"})
		}
		fmt.Fprintf(out, "%s Removed module %s from %s\n", ui.RenderPassIcon(), args[1], args[0])
		return nil
	},
}

var moduleListCmd = &cobra.Command{
	Use:   "list <document-id>",
	Short: "List the modules of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mods, err := rt.Engine.ListModules(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, mods)
		}
		for _, m := range mods {
			missing := rt.Catalog.MissingFields(m.ModuleKey, m.Payload)
			state := ui.RenderPass("complete")
			if modules.IsEmpty(m.Payload) {
				state = ui.RenderFail("empty")
			} else if len(missing) > 0 {
				state = ui.RenderWarn("missing " + strings.Join(missing, ", "))
			}
			fmt.Fprintf(out, "%-24s %s\n", m.ModuleKey, state)
		}
		return nil
	},
}

var moduleCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the module kinds of the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		defs := rt.Catalog.Definitions()
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, defs)
		}
		if len(defs) == 0 {
			fmt.Fprintln(out, "The catalog is empty; any module key is accepted.")
			return nil
		}
		for _, d := range defs {
			fmt.Fprintf(out, "%s  %s\n", ui.RenderAccent(d.Key), d.Title)
			if len(d.Required) > 0 {
				fmt.Fprintf(out, "  %s\n", ui.RenderMuted("required: "+strings.Join(d.Required, ", ")))
			}
		}
		return nil
	},
}

// readPayload resolves a module payload argument: inline JSON, @path or -
// for stdin.
func readPayload(stdin io.Reader, arg string) (json.RawMessage, error) {
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:]) // #nosec G304 - user-supplied path
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return json.RawMessage(strings.TrimSpace(string(data))), nil
}

// organizationFlag returns --org, defaulting to the actor's organization.
func organizationFlag(cmd *cobra.Command) (string, error) {
	if org, _ := cmd.Flags().GetString("org"); org != "" {
		return org, nil
	}
	a, err := rt.Directory.LookupActor(cmd.Context(), actor)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return "", fmt.Errorf("actor %q is not in %s; pass --org", actor, rt.Directory.Path())
		}
		return "", err
	}
	return a.OrganizationID, nil
}

func init() {
	docCreateCmd.Flags().String("title", "", "Document title")
	docCreateCmd.Flags().String("scope", "", "Document scope")
	docCreateCmd.Flags().String("org", "", "Organization (default: the actor's)")
	docShowCmd.Flags().Bool("published", false, "Show the external view of an issued document")
	docListCmd.Flags().String("org", "", "Organization (default: the actor's)")
	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().String("scope", "", "New scope")

	docCmd.AddCommand(docCreateCmd, docShowCmd, docListCmd, docLineageCmd)
	moduleCmd.AddCommand(moduleSetCmd, moduleRemoveCmd, moduleListCmd, moduleCatalogCmd)
	rootCmd.AddCommand(docCmd, editCmd, moduleCmd)
}
