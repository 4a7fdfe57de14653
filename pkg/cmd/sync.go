package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/pkg/config"
	"github.com/docpull/docpull/pkg/docstore"
	"github.com/docpull/docpull/pkg/project"
	docsync "github.com/docpull/docpull/pkg/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [source]",
		Short: "Import documentation from configured sources",
		Long: `Resolves each source's ref, fetches the files its rules match, rewrites
links and assets, and writes the results into the project. Files that
disappeared upstream are deleted. With a source argument only that source
is imported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}

	var results []*docsync.Result
	if len(args) == 1 {
		res, err := engine.SyncSource(cmd.Context(), args[0])
		if res != nil {
			results = append(results, res)
		}
		printResults(cmd, results)
		return err
	}

	results, err = engine.SyncAll(cmd.Context())
	printResults(cmd, results)
	return err
}

func printResults(cmd *cobra.Command, results []*docsync.Result) {
	for _, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s @ %.12s: %d matched, %d imported, %d unchanged, %d failed, %d deleted\n",
			res.Name, res.Commit, res.Matched, res.Imported, res.Unchanged, res.Failed, res.Deleted)
	}
}

// loadEngine loads and validates the manifest from the working directory
// and opens the state-backed engine the data commands share.
func loadEngine() (*docsync.Engine, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := config.LoadFile(filepath.Join(wd, project.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", project.ManifestFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", project.ManifestFile, err)
	}

	store, err := docstore.OpenFileStore(filepath.Join(wd, project.StateDir, "store.json"))
	if err != nil {
		return nil, err
	}
	meta, err := docstore.OpenMeta(filepath.Join(wd, project.StateDir, "tags.json"))
	if err != nil {
		return nil, err
	}

	engine := docsync.New(cfg, wd, store, meta, Logger)
	engine.Token = DevCfg.Token
	if DevCfg.Concurrency > 0 {
		engine.Concurrency = DevCfg.Concurrency
	}

	return engine, nil
}
