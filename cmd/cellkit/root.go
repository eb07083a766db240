package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/bundle"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "cellkit",
	Short:   "Quality control toolkit for single-cell expression data",
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// loadSet reads the input container from either a bundle directory or a
// counts matrix file, as selected by the command's flags.
func loadSet(cmd *cobra.Command) (*exprset.ExprSet, error) {
	bundlePath, _ := cmd.Flags().GetString("bundle")
	countsPath, _ := cmd.Flags().GetString("counts")

	switch {
	case bundlePath != "" && countsPath != "":
		return nil, fmt.Errorf("use either --bundle or --counts, not both")
	case bundlePath != "":
		r, err := bundle.NewReader(bundlePath, bundle.ReaderOptions{})
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ExprSet()
	case countsPath != "":
		counts, err := tabular.ReadMatrixFile(countsPath)
		if err != nil {
			return nil, err
		}
		return exprset.New(exprset.Config{Counts: counts})
	default:
		return nil, fmt.Errorf("an input is required: --bundle or --counts")
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
