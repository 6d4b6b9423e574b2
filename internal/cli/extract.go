package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rshade/rasterclip/internal/clip"
	"github.com/rshade/rasterclip/internal/config"
)

const extractArgCount = 5

// extractFlags holds the per-run overrides of the extract command.
type extractFlags struct {
	scratchDir     string
	workers        int
	strictIDs      bool
	minFreeMB      uint64
	pyramids       bool
	statistics     bool
	noOverwrite    bool
	background     float64
	exitCodeOnSkip int
}

// NewExtractCmd creates the extract command, which clips the source raster by
// every polygon record of a layer.
func NewExtractCmd() *cobra.Command {
	var flags extractFlags

	cmd := &cobra.Command{
		Use:   "extract <polygons> <id-field> <raster> <output-dir> <format>",
		Short: "Clip a raster by each polygon of a layer",
		Long: `Clips <raster> by every polygon record of <polygons> and writes one 8-bit
raster per record to <output-dir>, named <id><format>.

<format> is appended verbatim to the identifier, so pass ".tif" rather than
"tif". "GRID" or "" writes the native grid format.

Records that fail are skipped and listed in the summary; the command then
exits with --exit-code-on-skip (default 2). Exit code 3 means the scratch
workspace is held by another run.`,
		Example: `  # One GeoTIFF per parcel, identified by PID
  rasterclip extract parcels.geojson PID dem.tif out/ .tif

  # Native grid output, fail duplicate identifiers, two workers
  rasterclip extract parcels.geojson PID dem.tif out/ GRID --strict-ids --workers 2`,
		Args: cobra.ExactArgs(extractArgCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, &flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.scratchDir, "scratch-dir", "", "scratch workspace for intermediate datasets")
	f.IntVar(&flags.workers, "workers", config.DefaultWorkers, "number of records processed concurrently")
	f.BoolVar(&flags.strictIDs, "strict-ids", false, "skip records whose identifier is shared with another record")
	f.Uint64Var(&flags.minFreeMB, "min-free-mb", config.DefaultMinFreeMB,
		"minimum free scratch space in MB before each record (0 disables the check)")
	f.BoolVar(&flags.pyramids, "pyramids", false, "build overviews for written rasters")
	f.BoolVar(&flags.statistics, "statistics", false, "write band statistics next to written rasters")
	f.BoolVar(&flags.noOverwrite, "no-overwrite", false, "fail records whose output already exists")
	f.Float64Var(&flags.background, "background", 0, "value written to cells outside the polygon")
	f.IntVar(&flags.exitCodeOnSkip, "exit-code-on-skip", config.DefaultExitCodeOnSkip,
		"exit code when at least one record was skipped (0 treats skips as success)")

	return cmd
}

// applyExtractFlags overrides cfg with every flag set on the command line.
func applyExtractFlags(cmd *cobra.Command, cfg *config.Config, flags *extractFlags) {
	changed := cmd.Flags().Changed
	if changed("scratch-dir") {
		cfg.Engine.ScratchDir = flags.scratchDir
	}
	if changed("workers") {
		cfg.Engine.Workers = flags.workers
	}
	if changed("strict-ids") {
		cfg.Engine.StrictIDs = flags.strictIDs
	}
	if changed("min-free-mb") {
		cfg.Engine.MinFreeMB = flags.minFreeMB
	}
	if changed("pyramids") {
		cfg.Engine.Pyramids = flags.pyramids
	}
	if changed("statistics") {
		cfg.Engine.Statistics = flags.statistics
	}
	if changed("no-overwrite") {
		cfg.Output.Overwrite = !flags.noOverwrite
	}
	if changed("background") {
		cfg.Output.Background = flags.background
	}
	if changed("exit-code-on-skip") {
		cfg.Output.ExitCodeOnSkip = flags.exitCodeOnSkip
	}
}

func runExtract(cmd *cobra.Command, args []string, flags *extractFlags) error {
	ctx := cmd.Context()

	cfg, err := configFromContext(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyExtractFlags(cmd, cfg, flags)
	if err = cfg.Validate(); err != nil {
		return err
	}

	params := clip.Params{
		Polygons:  args[0],
		IDField:   args[1],
		Raster:    args[2],
		OutputDir: args[3],
		Format:    args[4],
	}
	audit := newAuditContext(ctx, "extract", map[string]string{
		"polygons":   params.Polygons,
		"id_field":   params.IDField,
		"raster":     params.Raster,
		"output_dir": params.OutputDir,
		"format":     params.Format,
		"workers":    strconv.Itoa(cfg.Engine.Workers),
	})

	opts := clip.Options{
		ScratchDir: cfg.Engine.ScratchDir,
		Workers:    cfg.Engine.Workers,
		StrictIDs:  cfg.Engine.StrictIDs,
		MinFreeMB:  cfg.Engine.MinFreeMB,
		Pyramids:   cfg.Engine.Pyramids,
		Statistics: cfg.Engine.Statistics,
		Overwrite:  cfg.Output.Overwrite,
		Background: cfg.Output.Background,
	}
	var reporter *progressReporter
	if isWriterTerminal(cmd.ErrOrStderr()) {
		reporter = newProgressReporter(cmd.ErrOrStderr())
		opts.Progress = reporter.Update
	}

	pipeline, err := clip.New(params, opts)
	if err != nil {
		audit.logFailure(ctx, err)
		return err
	}

	summary, runErr := pipeline.Run(ctx)
	if reporter != nil {
		reporter.Finish()
	}
	if summary != nil {
		if renderErr := RenderSummary(cmd.OutOrStdout(), summary); renderErr != nil {
			logger.Warn().Ctx(ctx).Err(renderErr).Msg("rendering summary")
		}
	}
	if runErr != nil {
		logger.Error().Ctx(ctx).Err(runErr).Msg("clip run aborted")
		audit.logFailure(ctx, runErr)
		return runErr
	}
	audit.logSuccess(ctx, summary)

	if skipped := len(summary.Skipped); skipped > 0 && cfg.Output.ExitCodeOnSkip != 0 {
		return &ExitCodeError{
			Code:   cfg.Output.ExitCodeOnSkip,
			Reason: fmt.Sprintf("%d of %d records skipped", skipped, summary.Total),
		}
	}
	return nil
}
