package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marcinmilkowski/metaindexer/configs"
	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: heredoc.Doc(`
			Manage metaindexer configuration.

			Configuration precedence (lowest to highest):
			  1. Built-in defaults
			  2. User config (~/.config/metaindexer/config.yaml)
			  3. Project config (.metaindexer.yaml in the working directory)
			  4. Environment variables (METAINDEXER_*)
			  5. Command-line flags
		`),
		Example: heredoc.Doc(`
			# Create .metaindexer.yaml from the template
			metaindexer config init

			# Show effective configuration
			metaindexer config show --json
		`),
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: heredoc.Doc(`
			Write the commented configuration template to .metaindexer.yaml in
			the working directory, or to the user config file with --user.

			An existing file is kept unless --force is given, in which case it
			is backed up first.
		`),
		Annotations: map[string]string{annotationNoConfig: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ProjectConfigName
			if user {
				path = config.GetUserConfigPath()
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user configuration instead of the project one")

	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, config files, environment variables and global flags.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(root.cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(root.cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "path",
		Short:       "Print configuration file paths",
		Annotations: map[string]string{annotationNoConfig: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return merrors.IOError("failed to get working directory", err)
			}
			project := config.FindProjectConfig(cwd)

			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(map[string]string{
					"user":    config.GetUserConfigPath(),
					"project": project,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\n", config.GetUserConfigPath())
			if project == "" {
				project = "(none)"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", project)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return merrors.IOError("failed to back up configuration", err)
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return merrors.New(merrors.ErrCodeFilePermission, "failed to create config directory", err)
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return merrors.New(merrors.ErrCodeFilePermission, "failed to write config file", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("📋", "Edit the file, then run 'metaindexer config show' to verify")
	return nil
}
