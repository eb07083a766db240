// Package api provides HTTP handlers for the cellkit QC viewer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/internal/qcstore"
	"github.com/cellkit/cellkit/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	Store       *qcstore.Store
	NMADs       float64
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// QC run store endpoints (not dataset-scoped)
	r.Route("/api/qc/runs", func(r chi.Router) {
		r.Post("/", runSubmitHandler(cfg))
		r.Get("/", runListHandler(cfg.Store))
		r.Get("/{run_id}", runStatusHandler(cfg.Store))
		r.Get("/{run_id}/cells", runCellsHandler(cfg.Store))
		r.Delete("/{run_id}", runDeleteHandler(cfg.Store))
	})

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/summary", datasetSummaryHandler)
			r.Get("/cells", datasetCellsHandler)
			r.Get("/features", datasetFeaturesHandler)
			r.Get("/distances/{axis}/{metric}", datasetDistancesHandler)
		})

		// Plot endpoints
		r.Get("/plots/qc_scatter.png", datasetScatterPlotHandler)
		r.Get("/plots/depth_hist.png", datasetHistogramPlotHandler)
		r.Get("/plots/top_features.png", datasetTopFeaturesPlotHandler)
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects its service
// into the request context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.DatasetService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.DatasetService); ok {
		return svc
	}
	return nil
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func datasetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.Summary())
}

func datasetCellsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	offset, limit := parsePage(r, 100)
	items, total, err := svc.Cells(offset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":  total,
		"offset": offset,
		"limit":  limit,
		"items":  items,
	})
}

func datasetFeaturesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	offset, limit := parsePage(r, 100)
	items, total, err := svc.Features(offset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":  total,
		"offset": offset,
		"limit":  limit,
		"items":  items,
	})
}

func datasetDistancesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	axis := chi.URLParam(r, "axis")
	metric := chi.URLParam(r, "metric")

	m, err := svc.Distances(axis, metric)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "unknown") {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	n := m.Dim()
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = m.At(i, j)
		}
		values[i] = row
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"axis":   axis,
		"metric": metric,
		"labels": m.Labels(),
		"values": values,
	})
}

func datasetScatterPlotHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	xCol := r.URL.Query().Get("x")
	if xCol == "" {
		xCol = qc.ColTotalCounts
	}
	yCol := r.URL.Query().Get("y")
	if yCol == "" {
		yCol = qc.ColPctCountsControls
	}
	cmap := r.URL.Query().Get("colormap")
	if cmap == "" {
		cmap = "viridis"
	}

	data, err := svc.QCScatterPlot(xCol, yCol, cmap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writePNG(w, data)
}

func datasetHistogramPlotHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	bins, _ := strconv.Atoi(r.URL.Query().Get("bins"))
	data, err := svc.DepthHistogramPlot(bins)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writePNG(w, data)
}

func datasetTopFeaturesPlotHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	data, err := svc.TopFeaturesPlot(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writePNG(w, data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// QC run handlers

type runSubmitRequest struct {
	Dataset string `json:"dataset"`
}

func runSubmitHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Store == nil {
			http.Error(w, "qc store not configured", http.StatusNotImplemented)
			return
		}

		var req runSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Dataset == "" {
			req.Dataset = cfg.Registry.DefaultDatasetID()
		}

		svc := cfg.Registry.Get(req.Dataset)
		if svc == nil {
			http.Error(w, "dataset not found: "+req.Dataset, http.StatusNotFound)
			return
		}

		cells, err := qc.CellRows(svc.Set())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		run := qcstore.NewRun(req.Dataset, svc.Summary().NFeatures, svc.Summary().NCells, svc.QCSummary(), cfg.NMADs)
		if err := cfg.Store.SaveRun(run, cells); err != nil {
			http.Error(w, "failed to save run: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run_id":  run.ID,
			"dataset": run.Dataset,
		})
	}
}

func runListHandler(store *qcstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "qc store not configured", http.StatusNotImplemented)
			return
		}

		dataset := r.URL.Query().Get("dataset")
		if dataset == "" {
			http.Error(w, "missing required query param: dataset", http.StatusBadRequest)
			return
		}

		runs, err := store.ListRuns(dataset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []*qcstore.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dataset": dataset,
			"runs":    runs,
		})
	}
}

func runStatusHandler(store *qcstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "qc store not configured", http.StatusNotImplemented)
			return
		}

		runID := chi.URLParam(r, "run_id")
		run, err := store.GetRun(runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

func runCellsHandler(store *qcstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "qc store not configured", http.StatusNotImplemented)
			return
		}

		runID := chi.URLParam(r, "run_id")
		run, err := store.GetRun(runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		offset, limit := parsePage(r, 100)
		orderBy := r.URL.Query().Get("order_by")

		items, total, err := store.QueryCells(runID, orderBy, offset, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []qc.CellRow{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run_id":   runID,
			"total":    total,
			"offset":   offset,
			"limit":    limit,
			"order_by": orderBy,
			"items":    items,
		})
	}
}

func runDeleteHandler(store *qcstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "qc store not configured", http.StatusNotImplemented)
			return
		}

		runID := chi.URLParam(r, "run_id")
		if err := store.DeleteRun(runID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run_id":  runID,
			"deleted": true,
		})
	}
}

func parsePage(r *http.Request, defaultLimit int) (offset, limit int) {
	limit = defaultLimit
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil && v >= 0 {
			offset = v
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
			limit = v
			if limit > 1000 {
				limit = 1000
			}
		}
	}
	return offset, limit
}
