// Package engine implements the raster/vector operations used by the batch
// clip pipeline: describe, select, polygon-to-raster, extract-by-mask,
// copy-raster and delete, plus capability check-out.
//
// There is no ambient engine state. Every operation receives an Env value
// that carries the processing extent, snap grid, cell size and write-time
// hints; callers reset the fields they need before each call.
package engine
