package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which sources have upstream changes",
		Long: `Resolves each source's ref and compares it with the last imported
commit. Nothing is fetched or written; sync never depends on this.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}

	results, err := engine.Check(cmd.Context())
	if err != nil {
		return err
	}

	stale := 0
	for _, res := range results {
		fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
		if !res.UpToDate {
			stale++
		}
	}
	if stale > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d source(s) need attention; run docpull sync\n", stale)
	}

	return nil
}
