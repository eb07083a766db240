package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/internal/qcstore"
)

// qcCmd computes per-cell and per-feature QC metrics.
var qcCmd = &cobra.Command{
	Use:   "qc",
	Short: "Compute QC metrics for an expression dataset",
	Long: `Computes per-cell metrics (library size, detected features, control
percentages, outlier flags) and per-feature metrics (mean expression,
expression rank, count shares) and writes them as CSV reports.`,
	Run: runQC,
}

func init() {
	rootCmd.AddCommand(qcCmd)

	qcCmd.Flags().StringP("bundle", "b", "", "Input bundle directory")
	qcCmd.Flags().StringP("counts", "i", "", "Input count matrix <CSV/TSV, features x cells>")
	qcCmd.Flags().StringP("controls", "c", "", "Comma separated control feature names")
	qcCmd.Flags().Float64("nmads", qc.DefaultNMADs, "Outlier threshold in median absolute deviations")
	qcCmd.Flags().String("cells-out", "cells_qc.csv", "Output file for per-cell metrics")
	qcCmd.Flags().String("features-out", "features_qc.csv", "Output file for per-feature metrics")
	qcCmd.Flags().String("store", "", "SQLite database to record the run in (optional)")
	qcCmd.Flags().String("dataset", "default", "Dataset name recorded with the run")
}

func runQC(cmd *cobra.Command, args []string) {
	set, err := loadSet(cmd)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}

	controls, _ := cmd.Flags().GetString("controls")
	nmads, _ := cmd.Flags().GetFloat64("nmads")

	set, summary, err := qc.Calculate(set, qc.Options{
		ControlFeatures: splitList(controls),
		NMADs:           nmads,
	})
	if err != nil {
		log.Fatalf("QC calculation failed: %v", err)
	}

	log.Printf("QC: %d features x %d cells, depth from %s, %d cells flagged",
		set.NumFeatures(), set.NumCells(), summary.DepthSource, summary.CellsFlagged)

	cellRows, err := qc.CellRows(set)
	if err != nil {
		log.Fatalf("Failed to extract cell metrics: %v", err)
	}
	featureRows, err := qc.FeatureRows(set)
	if err != nil {
		log.Fatalf("Failed to extract feature metrics: %v", err)
	}

	cellsOut, _ := cmd.Flags().GetString("cells-out")
	if err := writeReport(cellsOut, func(f *os.File) error {
		return qc.WriteCellReport(f, cellRows)
	}); err != nil {
		log.Fatalf("Failed to write %s: %v", cellsOut, err)
	}
	log.Printf("Wrote %s", cellsOut)

	featuresOut, _ := cmd.Flags().GetString("features-out")
	if err := writeReport(featuresOut, func(f *os.File) error {
		return qc.WriteFeatureReport(f, featureRows)
	}); err != nil {
		log.Fatalf("Failed to write %s: %v", featuresOut, err)
	}
	log.Printf("Wrote %s", featuresOut)

	storePath, _ := cmd.Flags().GetString("store")
	if storePath != "" {
		dataset, _ := cmd.Flags().GetString("dataset")
		store, err := qcstore.NewStore(storePath)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()

		run := qcstore.NewRun(dataset, set.NumFeatures(), set.NumCells(), summary, nmads)
		if err := store.SaveRun(run, cellRows); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		log.Printf("Recorded run %s in %s", run.ID, storePath)
	}
}

func writeReport(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
