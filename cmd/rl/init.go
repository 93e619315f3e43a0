package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/revledger/revledger/internal/config"
	"github.com/revledger/revledger/internal/types"
	"github.com/revledger/revledger/internal/ui"
)

const sampleCatalog = `# Module catalog. Each [modules.<key>] table declares a module kind and
# the payload fields that must be answered before a document can be issued.
# While this file declares no modules, any module key is accepted.
#
# [modules.means_of_escape]
# title = "Means of escape"
# required = ["exit_count", "signage"]
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a revledger project in the current directory",
	Long: `Creates .revledger/ with a commented config.yaml, an actors file that
makes the current actor an administrator of --org, a sample module catalog
and the database.`,
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		org, _ := cmd.Flags().GetString("org")
		if actor == "" {
			return errors.New("no actor: pass --actor or set RL_ACTOR")
		}

		cfgPath, err := config.WriteDefaultConfig(config.Dir)
		if err != nil {
			return err
		}
		settings := config.Load()
		if err := writeIfMissing(settings.IdentityFile, func() ([]byte, error) {
			return yaml.Marshal(map[string][]*types.Actor{"actors": {{
				ID:             actor,
				Name:           actor,
				OrganizationID: org,
				Role:           types.RoleAdmin,
			}}})
		}); err != nil {
			return err
		}
		if err := writeIfMissing(settings.ModulesCatalog, func() ([]byte, error) {
			return []byte(sampleCatalog), nil
		}); err != nil {
			return err
		}

		if err := openRuntime(cmd.Context(), settings); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, map[string]string{
				"config":       cfgPath,
				"database":     settings.DB,
				"actors":       settings.IdentityFile,
				"catalog":      settings.ModulesCatalog,
				"organization": org,
			})
		}
		fmt.Fprintf(out, "%s Initialized revledger in %s\n", ui.RenderPassIcon(), config.Dir)
		fmt.Fprintf(out, "  database: %s\n  actors:   %s\n  catalog:  %s\n", settings.DB, settings.IdentityFile, settings.ModulesCatalog)
		fmt.Fprintf(out, "  %s is admin of %s\n", ui.RenderAccent(actor), ui.RenderAccent(org))
		return nil
	},
}

func writeIfMissing(path string, content func() ([]byte, error)) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := content()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func init() {
	initCmd.Flags().String("org", "default", "Organization the initial admin belongs to")
	rootCmd.AddCommand(initCmd)
}
