package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/config"
	"github.com/revledger/revledger/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write project configuration",
	Long: `Reads and writes .revledger/config.yaml. Values are resolved from
defaults, config.yaml, .env and RL_* environment variables, with command
line flags taking precedence over all of them.`,
}

var configGetCmd = &cobra.Command{
	Use:         "get <key>",
	Short:       "Print the effective value of a key",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.Keys[args[0]] {
			return fmt.Errorf("unknown config key %q", args[0])
		}
		value := config.GetString(args[0])
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": value})
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Write a key to the project config.yaml",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetYamlConfig(args[0], args[1]); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": args[1]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Set %s = %s\n", ui.RenderPassIcon(), args[0], args[1])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List every key with its effective value",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		keys := config.KnownKeys()
		if jsonOutput {
			values := make(map[string]string, len(keys))
			for _, k := range keys {
				values[k] = config.GetString(k)
			}
			return outputJSON(out, values)
		}
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Fprintln(out, ui.RenderMuted("# "+path))
		}
		for _, k := range keys {
			value := config.GetString(k)
			if k == "serve.token" && value != "" {
				value = "********"
			}
			fmt.Fprintf(out, "%-24s %s\n", k, value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
