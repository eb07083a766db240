// Package service provides business logic for the QC viewer.
package service

import (
	"fmt"
	"sync"

	"github.com/cellkit/cellkit/internal/dist"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/plot"
	"github.com/cellkit/cellkit/internal/qc"
)

// DatasetServiceConfig contains dataset service configuration.
type DatasetServiceConfig struct {
	DatasetID string
	Set       *exprset.ExprSet
	QCOptions qc.Options
	Renderer  *plot.Renderer
	Distances *dist.Store
}

// DatasetService serves QC metrics, plots and distances for one dataset.
type DatasetService struct {
	datasetID string
	set       *exprset.ExprSet
	summary   qc.Summary
	renderer  *plot.Renderer
	distances *dist.Store

	// Rendered plot cache: key = kind + params
	plotMu    sync.Mutex
	plotCache map[string][]byte
}

// NewDatasetService runs the QC calculation on the container and wraps the
// result for serving.
func NewDatasetService(cfg DatasetServiceConfig) (*DatasetService, error) {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}

	set, summary, err := qc.Calculate(cfg.Set, cfg.QCOptions)
	if err != nil {
		return nil, fmt.Errorf("qc calculation for %s: %w", datasetID, err)
	}

	return &DatasetService{
		datasetID: datasetID,
		set:       set,
		summary:   summary,
		renderer:  cfg.Renderer,
		distances: cfg.Distances,
		plotCache: make(map[string][]byte),
	}, nil
}

// DatasetSummary describes a dataset for the API.
type DatasetSummary struct {
	Dataset             string  `json:"dataset"`
	NFeatures           int     `json:"n_features"`
	NCells              int     `json:"n_cells"`
	HasCounts           bool    `json:"has_counts"`
	LowerDetectionLimit float64 `json:"lower_detection_limit"`
	DepthSource         string  `json:"depth_source"`
	ControlFeatures     int     `json:"control_features"`
	CellsFlagged        int     `json:"cells_flagged"`
}

// DatasetID returns the dataset identifier.
func (s *DatasetService) DatasetID() string {
	return s.datasetID
}

// Set returns the QC-annotated container.
func (s *DatasetService) Set() *exprset.ExprSet {
	return s.set
}

// Summary returns dataset shape and QC calculation facts.
func (s *DatasetService) Summary() DatasetSummary {
	return DatasetSummary{
		Dataset:             s.datasetID,
		NFeatures:           s.set.NumFeatures(),
		NCells:              s.set.NumCells(),
		HasCounts:           s.set.HasCounts(),
		LowerDetectionLimit: s.set.LowerDetectionLimit(),
		DepthSource:         s.summary.DepthSource,
		ControlFeatures:     s.summary.ControlFeatures,
		CellsFlagged:        s.summary.CellsFlagged,
	}
}

// QCSummary returns the raw calculation summary.
func (s *DatasetService) QCSummary() qc.Summary {
	return s.summary
}

// Cells returns a page of per-cell QC metrics plus the total count.
func (s *DatasetService) Cells(offset, limit int) ([]qc.CellRow, int, error) {
	rows, err := qc.CellRows(s.set)
	if err != nil {
		return nil, 0, err
	}
	return pageOf(rows, offset, limit), len(rows), nil
}

// Features returns a page of per-feature QC metrics plus the total count.
func (s *DatasetService) Features(offset, limit int) ([]qc.FeatureRow, int, error) {
	rows, err := qc.FeatureRows(s.set)
	if err != nil {
		return nil, 0, err
	}
	return pageOf(rows, offset, limit), len(rows), nil
}

// QCScatterPlot renders (and caches) a metric scatter plot.
func (s *DatasetService) QCScatterPlot(xCol, yCol, colormap string) ([]byte, error) {
	key := fmt.Sprintf("scatter:%s:%s:%s", xCol, yCol, colormap)
	return s.cachedPlot(key, func() ([]byte, error) {
		return s.renderer.QCScatter(s.set, xCol, yCol, colormap)
	})
}

// DepthHistogramPlot renders (and caches) the library size histogram.
func (s *DatasetService) DepthHistogramPlot(bins int) ([]byte, error) {
	key := fmt.Sprintf("hist:%d", bins)
	return s.cachedPlot(key, func() ([]byte, error) {
		return s.renderer.DepthHistogram(s.set, bins)
	})
}

// TopFeaturesPlot renders (and caches) the highest-expression bar chart.
func (s *DatasetService) TopFeaturesPlot(n int) ([]byte, error) {
	key := fmt.Sprintf("top:%d", n)
	return s.cachedPlot(key, func() ([]byte, error) {
		return s.renderer.TopFeatures(s.set, n)
	})
}

func (s *DatasetService) cachedPlot(key string, render func() ([]byte, error)) ([]byte, error) {
	s.plotMu.Lock()
	if data, ok := s.plotCache[key]; ok {
		s.plotMu.Unlock()
		return data, nil
	}
	s.plotMu.Unlock()

	data, err := render()
	if err != nil {
		return nil, err
	}

	s.plotMu.Lock()
	s.plotCache[key] = data
	s.plotMu.Unlock()
	return data, nil
}

// Distances returns the pairwise distance matrix for one axis, computing
// and caching it on first use.
func (s *DatasetService) Distances(axis, metricName string) (*dist.Matrix, error) {
	fn, ok := dist.ByName(metricName)
	if !ok {
		return nil, fmt.Errorf("unknown distance metric: %s", metricName)
	}

	switch axis {
	case "cells":
		if m, err := s.distances.CellDistances(s.set, metricName); err == nil {
			return m, nil
		}
		return s.distances.SetCellDistances(s.set, metricName, fn)
	case "features":
		if m, err := s.distances.FeatureDistances(s.set, metricName); err == nil {
			return m, nil
		}
		return s.distances.SetFeatureDistances(s.set, metricName, fn)
	default:
		return nil, fmt.Errorf("unknown distance axis: %s (expected cells or features)", axis)
	}
}

func pageOf[T any](rows []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}
