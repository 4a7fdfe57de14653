package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/pkg/serve"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook daemon",
		Long: `Starts an HTTP server that listens for GitHub push webhooks and
re-imports the sources that pull from the pushed repository.

Configure the webhook to deliver JSON payloads signed with the shared
secret; requests are verified via X-Hub-Signature-256. The secret comes
from --secret-file or the DOCPULL_WEBHOOK_SECRET environment variable.`,
		RunE: runServe,
	}

	serveCmd.Flags().String("addr", serve.DefaultAddr, "Address to listen on")
	serveCmd.Flags().String("secret-file", "", "File holding the webhook secret")

	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	secretFile, err := cmd.Flags().GetString("secret-file")
	if err != nil {
		return err
	}

	secret := []byte(os.Getenv("DOCPULL_WEBHOOK_SECRET"))
	if secretFile != "" {
		secret, err = os.ReadFile(secretFile)
		if err != nil {
			return fmt.Errorf("reading webhook secret: %w", err)
		}
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	srv, err := serve.New(engine.Config, engine, addr, secret, Logger)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(cmd.Context())
}
