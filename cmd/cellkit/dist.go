package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/dist"
	"github.com/cellkit/cellkit/internal/tabular"
)

// distCmd computes pairwise distance matrices.
var distCmd = &cobra.Command{
	Use:   "dist",
	Short: "Compute a pairwise distance matrix over cells or features",
	Run:   runDist,
}

func init() {
	rootCmd.AddCommand(distCmd)

	distCmd.Flags().StringP("bundle", "b", "", "Input bundle directory")
	distCmd.Flags().StringP("counts", "i", "", "Input count matrix <CSV/TSV, features x cells>")
	distCmd.Flags().String("axis", "cells", "Distance axis (cells or features)")
	distCmd.Flags().StringP("metric", "m", "euclidean", "Distance metric (euclidean, manhattan, canberra)")
	distCmd.Flags().StringP("out", "o", "distances.csv", "Output CSV file")
}

func runDist(cmd *cobra.Command, args []string) {
	set, err := loadSet(cmd)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}

	metricName, _ := cmd.Flags().GetString("metric")
	fn, ok := dist.ByName(metricName)
	if !ok {
		log.Fatalf("Unknown metric %q", metricName)
	}

	axis, _ := cmd.Flags().GetString("axis")
	var m *dist.Matrix
	switch axis {
	case "cells":
		m, err = dist.CellDistances(set, fn)
	case "features":
		m, err = dist.FeatureDistances(set, fn)
	default:
		log.Fatalf("Unknown axis %q, want cells or features", axis)
	}
	if err != nil {
		log.Fatalf("Distance computation failed: %v", err)
	}

	n := m.Dim()
	values := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			values = append(values, m.At(i, j))
		}
	}
	out, err := tabular.NewMatrix(m.Labels(), m.Labels(), values)
	if err != nil {
		log.Fatalf("Failed to assemble output matrix: %v", err)
	}

	outPath, _ := cmd.Flags().GetString("out")
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", outPath, err)
	}
	if err := tabular.WriteMatrix(f, out, ',', ""); err != nil {
		f.Close()
		log.Fatalf("Failed to write %s: %v", outPath, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write %s: %v", outPath, err)
	}
	log.Printf("Wrote %d x %d %s distances to %s", n, n, metricName, outPath)
}
