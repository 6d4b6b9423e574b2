package clip

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/rshade/rasterclip/internal/engine"
	"github.com/rshade/rasterclip/internal/engine/batch"
	"github.com/rshade/rasterclip/internal/engine/scratch"
	"github.com/rshade/rasterclip/internal/logging"
	"github.com/rshade/rasterclip/internal/raster"
	"github.com/rshade/rasterclip/internal/vector"
)

// Record outcomes written to the audit log.
const (
	outcomeWritten = "written"
	auditCommand   = "extract"

	outputDirPerm = 0o750
)

// Pipeline runs one clip batch.
type Pipeline struct {
	params     Params
	opts       Options
	codec      raster.Codec
	engineOpts []engine.Option
}

// New validates params and opts and returns a pipeline ready to Run.
func New(params Params, opts Options, engineOpts ...engine.Option) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.Workers < batch.MinWorkers || opts.Workers > batch.MaxWorkers {
		return nil, fmt.Errorf("%w: got %d", batch.ErrInvalidWorkers, opts.Workers)
	}
	if opts.ScratchDir == "" {
		return nil, fmt.Errorf("%w: scratch-dir", ErrMissingParam)
	}
	same, err := sameDir(opts.ScratchDir, params.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving directories: %w", err)
	}
	if same {
		return nil, fmt.Errorf("%w: %s", ErrScratchIsOutput, params.OutputDir)
	}
	codec, err := OutputCodec(NormalizeFormat(params.Format))
	if err != nil {
		return nil, err
	}
	return &Pipeline{params: params, opts: opts, codec: codec, engineOpts: engineOpts}, nil
}

// record is one polygon record queued for processing.
type record struct {
	index int
	id    string
	idErr error
}

// run holds the state shared by every record of a Run.
type run struct {
	p       *Pipeline
	log     zerolog.Logger
	audit   logging.AuditLogger
	traceID string
	eng     *engine.Engine
	slots   []*scratch.Workspace
	layer   *vector.Layer
	extent  orb.Bound
	source  *raster.Raster
	env     engine.Env
	outEnv  engine.Env
	suffix  string
	summary *Summary
}

// Run executes the batch. Records failing at selection, rasterization, mask
// extraction or conversion are skipped and listed in the summary; cleanup
// failures, exhausted disk space and cancellation abort the run. When the
// raster capability cannot be checked out no record is read and the returned
// error has kind engine.CapabilityUnavailable.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := logging.ComponentLogger(*logging.FromContext(ctx), "clip")

	runID := p.opts.RunID
	if runID == "" {
		runID = logging.GetOrGenerateTraceID(ctx)
	}
	summary := &Summary{RunID: runID}

	ws, err := scratch.Open(p.opts.ScratchDir, engine.Delete)
	if err != nil {
		return nil, err
	}
	eng := engine.New(ws, runID, p.engineOpts...)

	if err = eng.CheckOut(ctx); err != nil {
		log.Warn().Ctx(ctx).Err(err).Msg("raster capability is unavailable")
		return nil, engine.Fail(engine.CapabilityUnavailable, "", err)
	}
	defer func() {
		if checkInErr := eng.CheckIn(); checkInErr != nil {
			log.Warn().Ctx(ctx).Err(checkInErr).Msg("releasing raster capability")
		}
	}()

	r := &run{
		p:       p,
		log:     log,
		audit:   logging.AuditLoggerFromContext(ctx),
		traceID: logging.TraceIDFromContext(ctx),
		eng:     eng,
		suffix:  NormalizeFormat(p.params.Format),
		summary: summary,
	}
	records, err := r.setup(ctx, ws)
	if err != nil {
		return nil, err
	}
	summary.Total = len(records)

	if len(records) == 0 {
		log.Warn().Ctx(ctx).Str("polygons", p.params.Polygons).Msg("polygon layer has no records")
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	processor := batch.NewProcessor[record]().
		WithSkipPolicy(func(err error) bool { return !engine.IsFatal(err) }).
		WithProgressCallback(p.opts.Progress)

	if p.opts.Workers > 1 {
		_, err = processor.ProcessConcurrent(ctx, records, r.process, p.opts.Workers)
	} else {
		_, err = processor.Process(ctx, records, r.process)
	}

	if pruneErr := ws.Prune(); pruneErr != nil {
		log.Debug().Ctx(ctx).Err(pruneErr).Msg("pruning worker namespaces")
	}
	summary.sortByIndex()
	summary.Elapsed = time.Since(start)

	log.Info().Ctx(ctx).
		Int("total", summary.Total).
		Int("written", len(summary.Outputs)).
		Int("skipped", len(summary.Skipped)).
		Dur("elapsed", summary.Elapsed).
		Msg("clip run finished")
	return summary, err
}

// setup announces the environment, loads the layer and the source raster and
// fixes the snap grid and cell size for every record.
func (r *run) setup(ctx context.Context, ws *scratch.Workspace) ([]record, error) {
	p := r.p

	r.log.Info().Ctx(ctx).Msgf("Scratch directory: %s", ws.Dir())
	r.log.Info().Ctx(ctx).
		Bool("pyramids", p.opts.Pyramids).
		Bool("statistics", p.opts.Statistics).
		Msg("Output environment")

	layer, err := vector.Load(p.params.Polygons)
	if err != nil {
		return nil, fmt.Errorf("loading polygon layer: %w", err)
	}
	layerDesc := engine.DescribeLayer(p.params.Polygons, layer)
	if layer.Len() > 0 && !layer.HasField(p.params.IDField) {
		return nil, fmt.Errorf("%w: %q in %s", vector.ErrMissingField, p.params.IDField, p.params.Polygons)
	}
	r.layer = layer
	r.extent = layerDesc.Extent

	if err = os.MkdirAll(p.params.OutputDir, outputDirPerm); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	codec := raster.ForPath(p.params.Raster)
	source, err := codec.Read(p.params.Raster)
	if err != nil {
		return nil, fmt.Errorf("reading source raster: %w", err)
	}
	rasterDesc := engine.DescribeRaster(p.params.Raster, source)
	cellSize, err := engine.SourceCellSize(rasterDesc)
	if err != nil {
		return nil, err
	}
	r.source = source
	r.log.Debug().Ctx(ctx).
		Float64("cell_size", cellSize).
		Int("bands", rasterDesc.BandCount).
		Str("pixel_type", rasterDesc.PixelType.String()).
		Msg("source raster described")

	snap := source.Grid
	r.env = engine.Env{Snap: &snap, CellSize: cellSize, Overwrite: true}
	r.outEnv = r.env
	r.outEnv.Pyramids = p.opts.Pyramids
	r.outEnv.Statistics = p.opts.Statistics
	r.outEnv.Overwrite = p.opts.Overwrite

	r.slots = []*scratch.Workspace{ws}
	if p.opts.Workers > 1 {
		r.slots = make([]*scratch.Workspace, p.opts.Workers)
		for n := range p.opts.Workers {
			if r.slots[n], err = ws.Namespace(n); err != nil {
				return nil, err
			}
		}
	}

	records := make([]record, layer.Len())
	for i, f := range layer.Features {
		records[i].index = i
		records[i].id, records[i].idErr = vector.IdentifierOf(f, p.params.IDField)
		if records[i].idErr == nil {
			records[i].idErr = vector.ValidateIdentifier(records[i].id)
		}
	}
	if dupes, dupErr := vector.Duplicates(layer, p.params.IDField); dupErr == nil && len(dupes) > 0 {
		r.log.Warn().Ctx(ctx).
			Int("identifiers", len(dupes)).
			Bool("strict", p.opts.StrictIDs).
			Msg("polygon layer has duplicate identifiers")
	}
	return records, nil
}

// process runs one record and records its outcome.
func (r *run) process(ctx context.Context, rec record, _ int, slot int) error {
	start := time.Now()
	dest, err := r.clipRecord(ctx, rec, r.slots[slot])

	entry := logging.NewAuditEntry(auditCommand, r.traceID).WithDuration(start)
	if err == nil {
		r.summary.addOutput(Output{Index: rec.index, ID: rec.id, Path: dest})
		r.audit.Log(ctx, *entry.WithRecord(rec.id, outcomeWritten).WithOutput(dest))
		return nil
	}

	kind := engine.KindOf(err)
	r.audit.Log(ctx, *entry.WithRecord(rec.id, kind.String()).WithError(err.Error()))
	if engine.IsFatal(err) {
		r.log.Error().Ctx(ctx).Str("id", rec.id).Int("index", rec.index).Err(err).Msg("aborting run")
		return err
	}

	hint := engine.Hints(err)
	r.summary.addSkip(Skip{Index: rec.index, ID: rec.id, Kind: kind, Message: err.Error(), Hint: hint})
	r.log.Error().Ctx(ctx).
		Str("id", rec.id).
		Int("index", rec.index).
		Str("kind", kind.String()).
		Err(err).
		Msg("record skipped")
	return err
}

// clipRecord runs the steps of one record and returns the written path. The
// record's scratch handles are released on every path.
func (r *run) clipRecord(ctx context.Context, rec record, ws *scratch.Workspace) (dest string, err error) {
	if rec.idErr != nil {
		return "", engine.Fail(engine.SelectionFailed, rec.id, rec.idErr)
	}
	id := rec.id

	handles, release := ws.Acquire(id)
	defer func() {
		if relErr := release(); relErr != nil {
			dest = ""
			err = engine.Fail(engine.CleanupFailed, id, errors.Join(relErr, err))
		}
	}()

	if err = r.eng.EnsureFreeSpace(ws.Dir(), r.p.opts.MinFreeMB); err != nil {
		return "", err
	}

	env := r.env.WithExtent(r.extent)

	sel, err := r.eng.Select(ctx, r.layer, r.p.params.IDField, id, handles.Feature)
	if err != nil {
		return "", engine.Fail(engine.SelectionFailed, id, err)
	}
	if n := sel.Len(); n > 1 {
		if r.p.opts.StrictIDs {
			return "", engine.Fail(engine.SelectionFailed, id, fmt.Errorf("%w: %d features", ErrDuplicateID, n))
		}
		r.log.Warn().Ctx(ctx).Str("id", id).Int("matches", n).
			Msg("identifier is not unique, rasterizing every matching feature as one mask")
	}

	env = env.WithExtent(sel.Bound())
	if _, err = r.eng.PolygonToRaster(ctx, handles.Feature, handles.Mask, env); err != nil {
		return "", engine.Fail(engine.RasterizationFailed, id, err)
	}

	dest = OutputPath(r.p.params.OutputDir, id, r.suffix)
	r.log.Info().Ctx(ctx).Str("id", id).Msgf("Extracting to %s", dest)

	if _, err = r.eng.ExtractByMask(ctx, r.source, handles.Mask, handles.Clip, env); err != nil {
		return "", engine.Fail(engine.MaskExtractionFailed, id, err)
	}

	outEnv := r.outEnv
	outEnv.Extent = env.Extent
	_, err = r.eng.CopyRaster(ctx, handles.Clip, dest, outEnv, engine.CopyOptions{
		PixelType:  raster.U8,
		Background: r.p.opts.Background,
		Codec:      r.p.codec,
	})
	if err != nil {
		return "", engine.Fail(engine.ConversionFailed, id, err)
	}
	return dest, nil
}
