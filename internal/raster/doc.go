// Package raster provides the in-memory grid model and the file codecs used by
// the clip engine.
//
// A Raster is a north-up grid of one or more bands. Samples are held as
// float64 regardless of the declared PixelType; the pixel type only governs
// how values are clamped and encoded on write. Supported formats:
//   - native GRID: a directory with an hdr.yaml header and raw band planes
//   - .tif/.tiff, .png, .jpg/.jpeg, .bmp: image codecs georeferenced by a
//     world file sidecar (.tfw, .pgw, .jgw, .bpw)
//   - .asc: ESRI ASCII grid
//
// Coordinates are never reprojected; every dataset is assumed to share the
// same coordinate reference system.
package raster
