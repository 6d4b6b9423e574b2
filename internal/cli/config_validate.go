package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/rasterclip/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Loads the configuration (user file, project overlay and RASTERCLIP_*
environment variables) and checks it for syntax and value errors.`,
		Example: `  # Validate current configuration
  rasterclip config validate

  # Validate and show detailed information
  rasterclip config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose bool) error {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("configuration could not be loaded: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}
	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Config file: %s\n", cfg.ConfigPath())
	if dir := projectDirFromContext(cmd.Context()); dir != "" {
		cmd.Printf("  Project directory: %s\n", dir)
	}
	cmd.Printf("  Scratch directory: %s\n", cfg.Engine.ScratchDir)
	cmd.Printf("  Workers: %d\n", cfg.Engine.Workers)
	cmd.Printf("  Minimum free scratch space: %d MB\n", cfg.Engine.MinFreeMB)
	cmd.Printf("  Overwrite outputs: %t\n", cfg.Output.Overwrite)
	cmd.Printf("  Exit code on skip: %d\n", cfg.Output.ExitCodeOnSkip)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File != "" {
		cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	}
	if cfg.Logging.Audit.Enabled {
		cmd.Printf("  Audit log: %s\n", cfg.Logging.Audit.File)
	}
}
