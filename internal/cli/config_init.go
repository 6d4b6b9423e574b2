package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/rasterclip/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
// With a resolved project directory (--project-dir, RASTERCLIP_PROJECT_DIR or
// an existing .rasterclip/config.yaml above the working directory) and without
// --global, it writes the project-local config.yaml. Otherwise it writes the
// user configuration file.
func NewConfigInitCmd() *cobra.Command {
	var (
		force  bool
		global bool
		asTOML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Example: `  # Create ~/.rasterclip/config.yaml
  rasterclip config init

  # Create a project-local configuration
  rasterclip config init --project-dir .

  # Create ~/.rasterclip/config.toml, overwriting an existing file
  rasterclip config init --toml --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectDir := projectDirFromContext(cmd.Context())
			if projectDir != "" && !global {
				return initConfigAt(cmd, filepath.Join(projectDir, "config.yaml"), force)
			}

			path := config.New().ConfigPath()
			if path == "" {
				return errors.New("cannot determine the user configuration directory")
			}
			if asTOML {
				path = filepath.Join(filepath.Dir(path), "config.toml")
			}
			return initConfigAt(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().BoolVar(&global, "global", false, "write the user configuration even inside a project")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "write the user configuration as TOML")

	return cmd
}

// initConfigAt writes the default configuration to path.
func initConfigAt(cmd *cobra.Command, path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return errors.New("configuration file already exists, use --force to overwrite")
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("cannot access config path %s: %w", path, err)
		}
	}

	cfg := config.New()
	cfg.SetConfigPath(path)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized at %s\n", path)
	return nil
}
