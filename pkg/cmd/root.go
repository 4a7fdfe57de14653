package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docpull/docpull/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagToken       string
	flagConcurrency int
	flagVerbose     bool

	// DevCfg holds the resolved developer configuration, available to all
	// subcommands after PersistentPreRunE completes.
	DevCfg *config.DevConfig

	// Logger is shared by all subcommands. It writes to stderr so command
	// output on stdout stays machine-readable.
	Logger *slog.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docpull",
		Short: "Documentation import tool",
		Long:  "docpull imports documentation trees from source repositories into a site workspace, rewriting links and assets along the way.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; real environment variables still apply.
			_ = godotenv.Load()

			cfg, err := config.LoadDevConfig(flagToken, flagConcurrency)
			if err != nil {
				return err
			}
			DevCfg = cfg

			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagToken, "token", "", "API token for private repositories (overrides DOCPULL_TOKEN and config files)")
	root.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 0, "maximum concurrent file fetches (0 uses the default)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newServeCmd())

	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
