package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/rasterclip/internal/engine"
)

// Describe output formats.
const (
	describeFormatText = "text"
	describeFormatJSON = "json"
)

// NewDescribeCmd creates the describe command, which prints the properties
// of a raster or vector dataset.
func NewDescribeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "describe <dataset>",
		Short: "Print the properties of a raster or polygon layer",
		Example: `  rasterclip describe dem.tif
  rasterclip describe parcels.geojson --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := engine.Describe(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(output) {
			case describeFormatJSON:
				return renderDescriptionJSON(cmd.OutOrStdout(), desc)
			case describeFormatText, "":
				return renderDescription(cmd.OutOrStdout(), desc)
			default:
				return fmt.Errorf("unsupported output format %q (use text or json)", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", describeFormatText, "output format: text or json")
	return cmd
}

// renderDescription writes d as aligned "key: value" lines.
func renderDescription(w io.Writer, d *engine.Description) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	line := func(key, format string, args ...any) {
		b.WriteString(p.Sprintf("%-18s", key+":"))
		b.WriteString(p.Sprintf(format, args...))
		b.WriteString("\n")
	}

	line("Path", "%s", d.Path)
	line("Dataset type", "%s", d.Type)
	line("Format", "%s", d.Format)
	line("Extent", "%g %g %g %g", d.Extent.Min[0], d.Extent.Min[1], d.Extent.Max[0], d.Extent.Max[1])

	switch d.Type {
	case engine.FeatureClass:
		line("Features", "%d", d.FeatureCount)
		line("Fields", "%s", strings.Join(d.Fields, ", "))
	case engine.RasterDataset:
		line("Columns", "%d", d.Grid.Cols)
		line("Rows", "%d", d.Grid.Rows)
		line("Origin", "%g %g", d.Grid.OriginX, d.Grid.OriginY)
		line("Pixel type", "%s", d.PixelType)
		line("Band count", "%d", d.BandCount)
		if d.NoData != nil {
			line("NoData", "%g", *d.NoData)
		} else {
			line("NoData", "none")
		}
		if d.BandCount == 1 {
			line("MeanCellHeight", "%g", d.MeanCellHeight)
			line("MeanCellWidth", "%g", d.MeanCellWidth)
		}
		for _, band := range d.Bands {
			line(fmt.Sprintf("Band_%d", band.Index), "MeanCellHeight %g, MeanCellWidth %g",
				band.MeanCellHeight, band.MeanCellWidth)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderDescriptionJSON(w io.Writer, d *engine.Description) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
