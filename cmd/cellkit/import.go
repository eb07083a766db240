package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/bundle"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

// importCmd converts a plain count matrix into the chunked bundle layout.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Convert a count matrix CSV into a bundle",
	Run:   runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("counts", "i", "", "Input count matrix <CSV/TSV, features x cells>")
	importCmd.Flags().StringP("out", "o", "", "Output bundle directory")
	importCmd.Flags().String("dataset", "default", "Dataset name stored in the bundle")
	importCmd.Flags().Float64("detection-limit", 0, "Lower detection limit")
	importCmd.Flags().Int("chunk-rows", 0, "Features per chunk (0 uses the default)")
	importCmd.MarkFlagRequired("counts")
	importCmd.MarkFlagRequired("out")
}

func runImport(cmd *cobra.Command, args []string) {
	countsPath, _ := cmd.Flags().GetString("counts")
	counts, err := tabular.ReadMatrixFile(countsPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", countsPath, err)
	}

	limit, _ := cmd.Flags().GetFloat64("detection-limit")
	set, err := exprset.New(exprset.Config{
		Counts:              counts,
		LowerDetectionLimit: limit,
	})
	if err != nil {
		log.Fatalf("Failed to build dataset: %v", err)
	}

	out, _ := cmd.Flags().GetString("out")
	dataset, _ := cmd.Flags().GetString("dataset")
	chunkRows, _ := cmd.Flags().GetInt("chunk-rows")
	if err := bundle.Write(out, set, bundle.WriteOptions{
		Dataset:   dataset,
		ChunkRows: chunkRows,
	}); err != nil {
		log.Fatalf("Failed to write bundle: %v", err)
	}
	log.Printf("Imported %d features x %d cells into %s",
		set.NumFeatures(), set.NumCells(), out)
}
