package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/rasterclip/internal/logging"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// isWriterTerminal reports whether w is a terminal file.
func isWriterTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the rasterclip CLI.
// It wires up configuration, logging, tracing, audit logging, and the
// extract, describe and config subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var (
		logResult *logging.LogPathResult
		closed    bool
	)
	closeLogs := func(cmd *cobra.Command) error {
		if closed {
			return nil
		}
		closed = true
		return cleanupLogging(cmd, logResult)
	}

	cmd := &cobra.Command{
		Use:   "rasterclip",
		Short: "Clip a raster by every polygon of a layer",
		Long: `rasterclip extracts, for each polygon record of a GeoJSON layer, the part of a
source raster covered by that polygon and writes it as an 8-bit raster named
after the record's identifier.`,
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded := loadConfig(cmd)
			result := setupLogging(cmd, loaded)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return closeLogs(cmd)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "configuration file (YAML or TOML, default ~/.rasterclip/config.yaml)")
	cmd.PersistentFlags().String("project-dir", "", "project directory holding .rasterclip/config.yaml")
	cmd.AddCommand(NewExtractCmd(), NewDescribeCmd(), newConfigCmd())

	closeOnError(cmd, closeLogs)
	return cmd
}

// closeOnError wraps every RunE below c so that logging handles are closed
// when the command fails; cobra skips PersistentPostRunE after a RunE error.
func closeOnError(c *cobra.Command, closeLogs func(*cobra.Command) error) {
	for _, sub := range c.Commands() {
		closeOnError(sub, closeLogs)
	}
	if c.RunE == nil {
		return
	}
	run := c.RunE
	c.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err != nil {
			_ = closeLogs(cmd)
		}
		return err
	}
}

const rootCmdExample = `  # Clip elevation.tif by every parcel, writing <PID>.tif files
  rasterclip extract parcels.geojson PID elevation.tif out/ .tif

  # Same run in the native grid format, four workers
  rasterclip extract parcels.geojson PID elevation.tif out/ GRID --workers 4

  # Inspect a dataset
  rasterclip describe elevation.tif

  # Initialize configuration
  rasterclip config init`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigShowCmd(), NewConfigValidateCmd())
	return cmd
}
