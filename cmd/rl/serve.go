package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger/internal/config"
	"github.com/revledger/revledger/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the lifecycle engine over HTTP",
	Long: `Serves every lifecycle operation as POST /rl.v1.LifecycleService/<Method>
with a JSON body. The acting user is taken from the X-RL-Actor header. When
serve.token is set, requests must carry "Authorization: Bearer <token>".
The actors file is reloaded whenever it changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = config.GetString("serve.addr")
		}
		token := config.GetString("serve.token")

		go func() {
			if err := rt.Directory.Watch(ctx, log); err != nil {
				log.Warn("actors file will not be reloaded", "error", err)
			}
		}()

		srv := rpc.NewHTTPServer(rpc.NewServer(rt.Engine, Version, log), addr, token)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving lifecycle engine on %s\n", addr)
		log.Info("serving lifecycle engine", "addr", addr, "auth", token != "")
		return srv.Start(ctx)
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote <Method> [json-args]",
	Short: "Call a method on a running rl serve",
	Long: `Calls one method of a remote lifecycle service and prints the JSON
response, for example:

  rl remote Ping
  rl remote Issue '{"document_id":"doc-1a2b","change_note":"annual review"}'`,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			url = "http://" + config.GetString("serve.addr")
		}
		var payload json.RawMessage = []byte("{}")
		if len(args) == 2 {
			p, err := readPayload(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			payload = p
		}

		client := rpc.NewHTTPClient(url, config.GetString("serve.token"), actor)
		var out json.RawMessage
		if err := client.Call(cmd.Context(), args[0], payload, &out); err != nil {
			return err
		}
		if strings.TrimSpace(string(out)) == "" {
			return nil
		}
		var v interface{}
		if err := json.Unmarshal(out, &v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return outputJSON(cmd.OutOrStdout(), v)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: serve.addr)")
	remoteCmd.Flags().String("url", "", "Server base URL (default: http://<serve.addr>)")
	rootCmd.AddCommand(serveCmd, remoteCmd)
}
