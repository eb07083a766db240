package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/plot"
	"github.com/cellkit/cellkit/internal/qc"
)

// plotCmd renders QC plots to PNG files.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render QC plots for an expression dataset",
	Run:   runPlot,
}

func init() {
	rootCmd.AddCommand(plotCmd)

	plotCmd.Flags().StringP("bundle", "b", "", "Input bundle directory")
	plotCmd.Flags().StringP("counts", "i", "", "Input count matrix <CSV/TSV, features x cells>")
	plotCmd.Flags().StringP("controls", "c", "", "Comma separated control feature names")
	plotCmd.Flags().Float64("nmads", qc.DefaultNMADs, "Outlier threshold in median absolute deviations")
	plotCmd.Flags().StringP("out", "o", "plots", "Output directory for PNG files")
	plotCmd.Flags().Int("width", 640, "Plot width in pixels")
	plotCmd.Flags().Int("height", 480, "Plot height in pixels")
	plotCmd.Flags().String("colormap", "viridis", "Colormap for the QC scatter")
	plotCmd.Flags().Int("bins", 30, "Histogram bin count")
	plotCmd.Flags().Int("top", 20, "Number of features in the top features plot")
}

func runPlot(cmd *cobra.Command, args []string) {
	set, err := loadSet(cmd)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}

	controls, _ := cmd.Flags().GetString("controls")
	nmads, _ := cmd.Flags().GetFloat64("nmads")

	set, _, err = qc.Calculate(set, qc.Options{
		ControlFeatures: splitList(controls),
		NMADs:           nmads,
	})
	if err != nil {
		log.Fatalf("QC calculation failed: %v", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	cmapName, _ := cmd.Flags().GetString("colormap")
	renderer := plot.NewRenderer(plot.Config{
		Width:           width,
		Height:          height,
		DefaultColormap: cmapName,
	})

	outDir, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", outDir, err)
	}

	bins, _ := cmd.Flags().GetInt("bins")
	top, _ := cmd.Flags().GetInt("top")

	plots := []struct {
		name   string
		render func() ([]byte, error)
	}{
		{"qc_scatter.png", func() ([]byte, error) {
			return renderer.QCScatter(set, qc.ColTotalCounts, qc.ColPctCountsControls, cmapName)
		}},
		{"depth_hist.png", func() ([]byte, error) {
			return renderer.DepthHistogram(set, bins)
		}},
		{"top_features.png", func() ([]byte, error) {
			return renderer.TopFeatures(set, top)
		}},
	}
	for _, p := range plots {
		png, err := p.render()
		if err != nil {
			log.Fatalf("Failed to render %s: %v", p.name, err)
		}
		path := filepath.Join(outDir, p.name)
		if err := os.WriteFile(path, png, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("Wrote %s", path)
	}
}
