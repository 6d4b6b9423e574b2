package raster

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// jpegQuality is used for JPEG outputs. Cells outside the mask pick up
// compression noise at any quality.
const jpegQuality = 95

// imageCodec stores 8-bit (and for TIFF/PNG single-band 16-bit) rasters in
// standard image formats, georeferenced by a world file.
type imageCodec struct {
	suffix string
}

func (c imageCodec) Name() string {
	switch c.suffix {
	case ".tif", ".tiff":
		return "TIFF"
	case ".png":
		return "PNG"
	case ".jpg", ".jpeg":
		return "JPEG"
	default:
		return "BMP"
	}
}

func (c imageCodec) Files(path string) []string {
	return []string{path, WorldFilePath(path)}
}

func (c imageCodec) decode(r io.Reader) (image.Image, error) {
	switch c.suffix {
	case ".tif", ".tiff":
		return tiff.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	default:
		return bmp.Decode(r)
	}
}

func (c imageCodec) encode(w io.Writer, img image.Image) error {
	switch c.suffix {
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return bmp.Encode(w, img)
	}
}

func (c imageCodec) Read(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.Name(), err)
	}
	defer f.Close()

	img, err := c.decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", c.Name(), path, err)
	}
	b := img.Bounds()
	grid, err := ReadWorldFile(WorldFilePath(path), b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return rasterFromImage(img, grid)
}

func (c imageCodec) Write(path string, r *Raster, _ WriteOptions) error {
	if err := r.Validate(); err != nil {
		return err
	}
	img, err := c.imageFromRaster(r)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err = c.encode(w, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding %s: %w", c.Name(), err)
	}
	if err = w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", c.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return WriteWorldFile(WorldFilePath(path), r.Grid)
}

func (c imageCodec) imageFromRaster(r *Raster) (image.Image, error) {
	g := r.Grid
	rect := image.Rect(0, 0, g.Cols, g.Rows)
	switch {
	case r.PixelType == U8 && len(r.Bands) == 1:
		img := image.NewGray(rect)
		for row := range g.Rows {
			for col := range g.Cols {
				img.SetGray(col, row, color.Gray{Y: uint8(U8.Clamp(r.At(0, col, row)))})
			}
		}
		return img, nil
	case r.PixelType == U16 && len(r.Bands) == 1 && (c.Name() == "TIFF" || c.Name() == "PNG"):
		img := image.NewGray16(rect)
		for row := range g.Rows {
			for col := range g.Cols {
				img.SetGray16(col, row, color.Gray16{Y: uint16(U16.Clamp(r.At(0, col, row)))})
			}
		}
		return img, nil
	case r.PixelType == U8 && len(r.Bands) == 3:
		img := image.NewRGBA(rect)
		for row := range g.Rows {
			for col := range g.Cols {
				img.SetRGBA(col, row, color.RGBA{
					R: uint8(U8.Clamp(r.At(0, col, row))),
					G: uint8(U8.Clamp(r.At(1, col, row))),
					B: uint8(U8.Clamp(r.At(2, col, row))),
					A: 0xff,
				})
			}
		}
		return img, nil
	case r.PixelType == U8 && len(r.Bands) == 4 && c.Name() != "JPEG":
		img := image.NewNRGBA(rect)
		for row := range g.Rows {
			for col := range g.Cols {
				img.SetNRGBA(col, row, color.NRGBA{
					R: uint8(U8.Clamp(r.At(0, col, row))),
					G: uint8(U8.Clamp(r.At(1, col, row))),
					B: uint8(U8.Clamp(r.At(2, col, row))),
					A: uint8(U8.Clamp(r.At(3, col, row))),
				})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot store %d band(s) of %s",
			ErrUnsupportedLayout, c.Name(), len(r.Bands), r.PixelType)
	}
}

func rasterFromImage(img image.Image, grid Grid) (*Raster, error) {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.Gray:
		r, err := New(grid, 1, U8)
		if err != nil {
			return nil, err
		}
		for row := range grid.Rows {
			for col := range grid.Cols {
				r.Set(0, col, row, float64(m.GrayAt(b.Min.X+col, b.Min.Y+row).Y))
			}
		}
		return r, nil
	case *image.Gray16:
		r, err := New(grid, 1, U16)
		if err != nil {
			return nil, err
		}
		for row := range grid.Rows {
			for col := range grid.Cols {
				r.Set(0, col, row, float64(m.Gray16At(b.Min.X+col, b.Min.Y+row).Y))
			}
		}
		return r, nil
	case *image.Paletted:
		if grayPalette(m.Palette) {
			r, err := New(grid, 1, U8)
			if err != nil {
				return nil, err
			}
			for row := range grid.Rows {
				for col := range grid.Cols {
					gray := color.GrayModel.Convert(m.At(b.Min.X+col, b.Min.Y+row)).(color.Gray)
					r.Set(0, col, row, float64(gray.Y))
				}
			}
			return r, nil
		}
	}
	return rasterFromColor(img, grid)
}

func rasterFromColor(img image.Image, grid Grid) (*Raster, error) {
	b := img.Bounds()
	bands := 3
	if !opaque(img) {
		bands = 4
	}
	r, err := New(grid, bands, U8)
	if err != nil {
		return nil, err
	}
	for row := range grid.Rows {
		for col := range grid.Cols {
			px := color.NRGBAModel.Convert(img.At(b.Min.X+col, b.Min.Y+row)).(color.NRGBA)
			r.Set(0, col, row, float64(px.R))
			r.Set(1, col, row, float64(px.G))
			r.Set(2, col, row, float64(px.B))
			if bands == 4 {
				r.Set(3, col, row, float64(px.A))
			}
		}
	}
	return r, nil
}

func grayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		if r != g || g != b {
			return false
		}
	}
	return true
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}
