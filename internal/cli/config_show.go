package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfigShowCmd creates the config show command, which prints the
// effective configuration after file, project and environment overrides.
func NewConfigShowCmd() *cobra.Command {
	var asTOML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Example: `  rasterclip config show
  rasterclip config show --toml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return fmt.Errorf("configuration could not be loaded: %w", err)
			}
			data, err := cfg.Marshal(asTOML)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&asTOML, "toml", false, "print as TOML instead of YAML")
	return cmd
}
