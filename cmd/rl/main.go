package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/revledger/revledger"
	"github.com/revledger/revledger/internal/config"
	"github.com/revledger/revledger/internal/logging"
	"github.com/revledger/revledger/internal/telemetry"
)

var (
	dbPath      string
	backend     string
	actor       string
	jsonOutput  bool
	verboseFlag bool
	assumeYes   bool

	// Set by PersistentPreRunE for commands that need the engine.
	rt  *revledger.Runtime
	log *slog.Logger
)

// noStore marks commands that run without opening the database.
const noStore = "rl/no-store"

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "rl - revision ledger for controlled documents",
	Long: `rl tracks controlled documents through draft, issue and supersession,
keeps every issued revision immutable, carries open corrective actions into
new revisions and records an audit trail of each transition.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		applyFlagOverrides(cmd)
		settings := config.Load()
		jsonOutput = settings.JSON

		level := settings.LogLevel
		if verboseFlag {
			level = "debug"
		}
		l, err := logging.New(level, settings.LogFormat, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		log = l

		if err := telemetry.Init(cmd.Context(), telemetry.Config{
			Enabled:      settings.Telemetry,
			OTLPEndpoint: settings.OTLPEndpoint,
			ServiceName:  "rl",
			Version:      Version,
		}); err != nil {
			log.Warn("telemetry disabled", "error", err)
		}

		actor = resolveActor(settings.Actor)
		if cmd.Annotations[noStore] == "true" {
			return nil
		}
		return openRuntime(cmd.Context(), settings)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		closeRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .revledger/revledger.db)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: sqlite or mysql")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor id for the audit trail (default: $RL_ACTOR, config actor, or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
}

// applyFlagOverrides pushes explicitly set flags into the config so they
// win over config.yaml and the environment.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		config.Set("db", dbPath)
	}
	if flags.Changed("backend") {
		config.Set("backend", backend)
	}
	if flags.Changed("actor") {
		config.Set("actor", actor)
	}
	if flags.Changed("json") {
		config.Set("json", jsonOutput)
	}
}

func resolveActor(configured string) string {
	if configured != "" {
		return configured
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func openRuntime(ctx context.Context, settings config.Settings) error {
	r, err := revledger.Open(ctx, revledger.Options{
		Backend:        settings.Backend,
		DBPath:         settings.DB,
		MySQLDSN:       settings.MySQLDSN,
		LockTimeout:    settings.LockTimeout,
		IdentityFile:   settings.IdentityFile,
		ModulesCatalog: settings.ModulesCatalog,
		AuditMirror:    settings.AuditMirror,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	rt = r
	log.Debug("runtime opened", "backend", settings.Backend, "db", settings.DB, "actor", actor)
	return nil
}

func closeRuntime() {
	if rt != nil {
		if err := rt.Close(); err != nil && log != nil {
			log.Warn("close storage", "error", err)
		}
		rt = nil
	}
	if err := telemetry.Shutdown(context.Background()); err != nil && log != nil {
		log.Warn("flush telemetry", "error", err)
	}
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		closeRuntime()
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
