package cmd

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean [source]",
		Short: "Delete local files that no longer exist upstream",
		Long: `Lists each source's upstream tree and deletes local files under its base
paths that no longer correspond to an upstream file. When the upstream
listing is empty or unavailable every local file looks orphaned; deleting
in that state requires --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClean,
	}

	cleanCmd.Flags().Bool("force", false, "Delete without confirmation, even when the upstream listing is empty")

	return cleanCmd
}

func runClean(cmd *cobra.Command, args []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	var ids []string
	if len(args) == 1 {
		if _, ok := engine.Config.Sources[args[0]]; !ok {
			return fmt.Errorf("unknown source %q", args[0])
		}
		ids = args[:1]
	} else {
		for id := range engine.Config.Sources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	if !force {
		proceed, err := confirmClean()
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
	}

	total := 0
	for _, id := range ids {
		n, err := engine.Clean(cmd.Context(), id, force)
		if err != nil {
			return err
		}
		total += n
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d orphaned file(s)\n", total)
	return nil
}

// confirmClean uses huh to ask before deleting anything.
func confirmClean() (bool, error) {
	var proceed bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete local files that no longer exist upstream?").
				Value(&proceed),
		),
	).Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}

	return proceed, nil
}
