// Package plot renders QC diagnostic plots using fogleman/gg.
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Width           int
	Height          int
	DefaultColormap string
}

const margin = 48.0

// Renderer renders QC plots as PNG images.
type Renderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
	colormaps   map[string]colormap.Colormap
}

// NewRenderer creates a new plot renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "viridis"
	}

	r := &Renderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["plasma"] = colormap.Plasma
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["magma"] = colormap.Magma
	r.colormaps["seurat"] = colormap.Seurat
	r.colormaps["categorical"] = colormap.Categorical

	return r
}

func (r *Renderer) colormapByName(name string) colormap.Colormap {
	if cmap, ok := r.colormaps[name]; ok {
		return cmap
	}
	return r.colormaps[r.config.DefaultColormap]
}

// QCScatter renders a scatter of two per-cell metric columns. Cells whose
// depth or coverage flag is set are drawn in red over the colormap points.
func (r *Renderer) QCScatter(set *exprset.ExprSet, xCol, yCol, colormapName string) ([]byte, error) {
	cd := set.CellData()
	xs, ok := cd.Float(xCol)
	if !ok {
		return nil, fmt.Errorf("plot: cell table has no column %q", xCol)
	}
	ys, ok := cd.Float(yCol)
	if !ok {
		return nil, fmt.Errorf("plot: cell table has no column %q", yCol)
	}
	flagDepth, _ := cd.Bool(qc.ColFilterTotalCounts)
	flagCoverage, _ := cd.Bool(qc.ColFilterTotalFeatures)

	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()
	r.drawFrame(dc, xCol, yCol)

	if len(xs) == 0 {
		return r.encodeContext(dc)
	}

	xMin, xMax := finiteRange(xs)
	yMin, yMax := finiteRange(ys)
	cmap := r.colormapByName(colormapName)

	plotW := float64(r.config.Width) - 2*margin
	plotH := float64(r.config.Height) - 2*margin

	for j := range xs {
		if !isFinite(xs[j]) || !isFinite(ys[j]) {
			continue
		}
		px := margin + normalize(xs[j], xMin, xMax)*plotW
		py := float64(r.config.Height) - margin - normalize(ys[j], yMin, yMax)*plotH

		flagged := (j < len(flagDepth) && flagDepth[j]) ||
			(j < len(flagCoverage) && flagCoverage[j])
		if flagged {
			dc.SetColor(color.RGBA{214, 39, 40, 255})
		} else {
			dc.SetColor(cmap.At(normalize(ys[j], yMin, yMax)))
		}

		dc.DrawCircle(px, py, 2.5)
		dc.Fill()
	}

	return r.encodeContext(dc)
}

// DepthHistogram renders a histogram of per-cell library sizes.
func (r *Renderer) DepthHistogram(set *exprset.ExprSet, nBins int) ([]byte, error) {
	depth, ok := set.CellData().Float(qc.ColTotalCounts)
	if !ok {
		return nil, fmt.Errorf("plot: cell table has no column %q", qc.ColTotalCounts)
	}
	if nBins <= 0 {
		nBins = 30
	}

	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()
	r.drawFrame(dc, qc.ColTotalCounts, "cells")

	if len(depth) == 0 {
		return r.encodeContext(dc)
	}

	lo, hi := finiteRange(depth)
	binW := (hi - lo) / float64(nBins)
	if binW == 0 {
		binW = 1
	}

	counts := make([]int, nBins)
	maxCount := 0
	for _, v := range depth {
		if !isFinite(v) {
			continue
		}
		b := int((v - lo) / binW)
		if b >= nBins {
			b = nBins - 1
		}
		counts[b]++
		if counts[b] > maxCount {
			maxCount = counts[b]
		}
	}
	if maxCount == 0 {
		return r.encodeContext(dc)
	}

	plotW := float64(r.config.Width) - 2*margin
	plotH := float64(r.config.Height) - 2*margin
	barW := plotW / float64(nBins)

	dc.SetColor(colormap.Viridis.At(0.5))
	for b, n := range counts {
		if n == 0 {
			continue
		}
		h := float64(n) / float64(maxCount) * plotH
		x := margin + float64(b)*barW
		y := float64(r.config.Height) - margin - h
		dc.DrawRectangle(x, y, barW-1, h)
		dc.Fill()
	}

	return r.encodeContext(dc)
}

// TopFeatures renders a horizontal bar chart of the n highest-expressing
// features ranked by mean expression.
func (r *Renderer) TopFeatures(set *exprset.ExprSet, n int) ([]byte, error) {
	fd := set.FeatureData()
	mean, ok := fd.Float(qc.ColMeanExprs)
	if !ok {
		return nil, fmt.Errorf("plot: feature table has no column %q", qc.ColMeanExprs)
	}
	rank, ok := fd.Int(qc.ColExprsRank)
	if !ok {
		return nil, fmt.Errorf("plot: feature table has no column %q", qc.ColExprsRank)
	}
	if n <= 0 {
		n = 20
	}
	if n > len(mean) {
		n = len(mean)
	}

	// Rank k is the k-th lowest mean, so the top feature carries the
	// highest rank value.
	names := set.FeatureNames()
	byRank := make([]int, len(rank))
	for i, k := range rank {
		byRank[len(rank)-k] = i
	}
	top := byRank[:n]

	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()
	r.drawFrame(dc, qc.ColMeanExprs, "")

	maxMean := 0.0
	for _, i := range top {
		if mean[i] > maxMean {
			maxMean = mean[i]
		}
	}
	if maxMean == 0 {
		maxMean = 1
	}

	plotW := float64(r.config.Width) - 2*margin
	plotH := float64(r.config.Height) - 2*margin
	barH := plotH / float64(n)

	for pos, i := range top {
		w := mean[i] / maxMean * plotW
		y := margin + float64(pos)*barH

		dc.SetColor(colormap.Viridis.At(float64(pos) / float64(n)))
		dc.DrawRectangle(margin, y+1, w, barH-2)
		dc.Fill()

		dc.SetColor(color.Black)
		dc.DrawStringAnchored(names[i], margin+4, y+barH/2, 0, 0.35)
	}

	return r.encodeContext(dc)
}

func (r *Renderer) drawFrame(dc *gg.Context, xLabel, yLabel string) {
	w := float64(r.config.Width)
	h := float64(r.config.Height)

	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawLine(margin, h-margin, w-margin, h-margin)
	dc.DrawLine(margin, margin, margin, h-margin)
	dc.Stroke()

	if xLabel != "" {
		dc.DrawStringAnchored(xLabel, w/2, h-margin/3, 0.5, 0.5)
	}
	if yLabel != "" {
		dc.Push()
		dc.RotateAbout(-math.Pi/2, margin/3, h/2)
		dc.DrawStringAnchored(yLabel, margin/3, h/2, 0.5, 0.5)
		dc.Pop()
	}
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteRange(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 1
	}
	return lo, hi
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}
