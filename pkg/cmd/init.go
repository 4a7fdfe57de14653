package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/docpull/docpull/pkg/config"
	"github.com/docpull/docpull/pkg/project"
	"github.com/docpull/docpull/pkg/remote"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new docpull project",
		Long:  "Creates a docpull.toml manifest and configures .gitignore entries.",
		RunE:  runInit,
		// init does not need dev config resolution; skip the root PersistentPreRunE.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	name := project.InferName(wd)

	repo, ref, token, err := promptSource()
	if err != nil {
		return err
	}

	if err := project.Init(wd, name, repo, ref); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", project.ManifestFile)

	added, err := project.EnsureGitignore(wd, project.GitignoreEntries)
	if err != nil {
		return err
	}
	for _, entry := range added {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", entry)
	}

	if token != "" {
		if err := config.WriteLocalDevConfig(wd, &config.DevConfig{Token: token}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s (gitignored)\n", config.LocalConfigFile)
	}

	return nil
}

// promptSource uses huh to ask for an initial source repository and an
// optional API token. An empty repository skips the example source.
func promptSource() (repo, ref, token string, err error) {
	ref = "main"
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Source repository (owner/name, leave empty to skip)").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, err := remote.ParseRepo(s)
					return err
				}).
				Value(&repo),
			huh.NewInput().
				Title("Ref to track").
				Value(&ref),
			huh.NewInput().
				Title("API token for private repositories (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", "", fmt.Errorf("prompt failed: %w", err)
	}

	return repo, ref, token, nil
}
