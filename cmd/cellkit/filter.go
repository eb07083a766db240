package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/bundle"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/qc"
)

// filterCmd removes outlier cells and writes the reduced dataset.
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Remove flagged cells and write a filtered bundle",
	Run:   runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)

	filterCmd.Flags().StringP("bundle", "b", "", "Input bundle directory")
	filterCmd.Flags().StringP("counts", "i", "", "Input count matrix <CSV/TSV, features x cells>")
	filterCmd.Flags().StringP("controls", "c", "", "Comma separated control feature names")
	filterCmd.Flags().Float64("nmads", qc.DefaultNMADs, "Outlier threshold in median absolute deviations")
	filterCmd.Flags().StringP("out", "o", "filtered", "Output bundle directory")
	filterCmd.Flags().String("dataset", "filtered", "Dataset name stored in the output bundle")
	filterCmd.MarkFlagRequired("out")
}

func runFilter(cmd *cobra.Command, args []string) {
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

	filtered, err := dropFlaggedCells(set)
	if err != nil {
		log.Fatalf("Failed to subset cells: %v", err)
	}

	log.Printf("Kept %d of %d cells (%d flagged)",
		filtered.NumCells(), set.NumCells(), summary.CellsFlagged)

	out, _ := cmd.Flags().GetString("out")
	dataset, _ := cmd.Flags().GetString("dataset")
	if err := bundle.Write(out, filtered, bundle.WriteOptions{Dataset: dataset}); err != nil {
		log.Fatalf("Failed to write bundle: %v", err)
	}
	log.Printf("Wrote bundle %s", out)
}

// dropFlaggedCells keeps only the cells neither outlier flag marks.
func dropFlaggedCells(set *exprset.ExprSet) (*exprset.ExprSet, error) {
	countFlags, ok := set.CellData().Bool(qc.ColFilterTotalCounts)
	if !ok {
		return nil, fmt.Errorf("missing filter column %q", qc.ColFilterTotalCounts)
	}
	featureFlags, ok := set.CellData().Bool(qc.ColFilterTotalFeatures)
	if !ok {
		return nil, fmt.Errorf("missing filter column %q", qc.ColFilterTotalFeatures)
	}

	return set.Subset(nil, func(j int, name string) bool {
		return !countFlags[j] && !featureFlags[j]
	})
}
